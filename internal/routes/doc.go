// Package routes builds the application's route table.
//
// Routes come from two sources that compose into one Table: the
// nested-folder convention under the app's routes directory (see Scan) and
// programmatic registration through DefineRoutes. Route ids are derived from
// the route file path with the extension stripped and separators normalized
// to "/". The root document route is always present with id "root".
package routes

package config

import (
	"git.home.luguber.info/inful/twinbuild/internal/routes"
)

// RoutesDirectory is the conventional routes folder inside the app directory.
const RoutesDirectory = "routes"

// DefineRoutes replays the routes declared in the config file through d.
func (c *Config) DefineRoutes(d *routes.Definer) error {
	return defineRouteConfigs(d, c.Routes)
}

func defineRouteConfigs(d *routes.Definer, rs []RouteConfig) error {
	for _, r := range rs {
		var opts []routes.RouteOption
		if r.Index {
			opts = append(opts, routes.Index())
		}
		if r.CaseSensitive {
			opts = append(opts, routes.CaseSensitive())
		}
		if len(r.Children) == 0 {
			if err := d.Route(r.Path, r.File, opts...); err != nil {
				return err
			}
			continue
		}
		children := r.Children
		err := d.Nest(r.Path, r.File, func(d *routes.Definer) error {
			return defineRouteConfigs(d, children)
		}, opts...)
		if err != nil {
			return err
		}
	}
	return nil
}

// ResolveRoutes builds the route table from the routes folder, the config
// file and the optional extra definer, later sources overriding earlier ones.
func ResolveRoutes(cfg *Config, entries Entries, extra func(*routes.Definer) error) (routes.Table, error) {
	scanned, err := routes.Scan(cfg.AppDirectory, RoutesDirectory)
	if err != nil {
		return nil, err
	}

	manual, err := routes.DefineRoutes(func(d *routes.Definer) error {
		if err := cfg.DefineRoutes(d); err != nil {
			return err
		}
		if extra != nil {
			return extra(d)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return routes.Assemble(entries.Root, scanned, manual)
}

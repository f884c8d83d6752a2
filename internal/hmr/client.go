package hmr

import (
	"net/http"
	"strconv"
	"strings"
)

// Dev server paths.
const (
	PathWebsocket = "/__hmr"
	PathSSE       = "/__livereload"
	PathClient    = "/__hmr-client.js"
)

const clientTemplate = `(() => {
  if (window.__twinbuildHot) return;
  const proto = location.protocol === "https:" ? "wss" : "ws";
  const url = proto + "://" + location.hostname + ":__PORT__" + "__PATH__";
  let socket;
  const queue = [];
  function send(msg) {
    if (socket && socket.readyState === 1) socket.send(JSON.stringify(msg));
    else queue.push(msg);
  }
  window.__twinbuildHot = {
    accept(id) { send({ type: "hotAccept", id }); },
  };
  function connect() {
    socket = new WebSocket(url, "esm-hmr");
    socket.addEventListener("open", () => {
      while (queue.length) socket.send(JSON.stringify(queue.shift()));
    });
    socket.addEventListener("message", (e) => {
      let msg;
      try { msg = JSON.parse(e.data); } catch (_) { return; }
      if (msg.type === "reload") {
        console.log("[twinbuild] change detected, reloading");
        location.reload();
      }
    });
    socket.addEventListener("close", () => setTimeout(connect, 2000));
  }
  connect();
})();
`

// ClientScript returns the browser runtime that listens for reload
// messages on the given dev server port.
func ClientScript(port int) string {
	r := strings.NewReplacer("__PORT__", strconv.Itoa(port), "__PATH__", PathWebsocket)
	return r.Replace(clientTemplate)
}

// ClientHandler serves ClientScript.
func ClientHandler(port int) http.Handler {
	body := ClientScript(port)
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache")
		_, _ = w.Write([]byte(body))
	})
}

package server

import (
	"bytes"
	"net/http"
	"path"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// ReloadScript connects to the reload socket and reloads the page after
// every successful build. Build errors are logged to the console.
const ReloadScript = `<script data-hydrate-reload>
(function () {
  function connect() {
    var proto = location.protocol === "https:" ? "wss://" : "ws://";
    var ws = new WebSocket(proto + location.host + "` + ReloadPath + `");
    ws.onmessage = function (ev) {
      var msg = JSON.parse(ev.data);
      if (msg.type === "reload") {
        location.reload();
      } else if (msg.type === "build_error") {
        console.error("[hydrate] build failed:\n" + msg.content);
      }
    };
    ws.onclose = function () { setTimeout(connect, 1000); };
  }
  connect();
})();
</script>`

func (s *Server) handleStatic(w http.ResponseWriter, r *http.Request) {
	if s.config.Dev {
		if name, ok := s.htmlFile(r.URL.Path); ok {
			data, err := afero.ReadFile(s.fs, name)
			if err == nil {
				w.Header().Set("Content-Type", "text/html; charset=utf-8")
				w.Header().Set("Cache-Control", "no-store")
				_, _ = w.Write(WithReloadScript(data))
				return
			}
		}
	}
	s.files.ServeHTTP(w, r)
}

// htmlFile maps a request path to the HTML file it serves, following
// directory index rules.
func (s *Server) htmlFile(urlPath string) (string, bool) {
	name := filepath.Join(s.config.Root, filepath.FromSlash(path.Clean("/"+urlPath)))
	if info, err := s.fs.Stat(name); err == nil && info.IsDir() {
		name = filepath.Join(name, "index.html")
	}
	return name, strings.EqualFold(filepath.Ext(name), ".html")
}

// WithReloadScript inserts ReloadScript before the closing body tag, or
// appends it when the page has none.
func WithReloadScript(page []byte) []byte {
	idx := bytes.LastIndex(bytes.ToLower(page), []byte("</body>"))
	if idx < 0 {
		return append(append([]byte{}, page...), ReloadScript...)
	}
	out := make([]byte, 0, len(page)+len(ReloadScript))
	out = append(out, page[:idx]...)
	out = append(out, ReloadScript...)
	return append(out, page[idx:]...)
}

package server

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/a-h/templ"

	"github.com/conneroisu/blockfactory/internal/model"
	"github.com/conneroisu/blockfactory/internal/version"
)

const pageStyle = `
body { font-family: system-ui, -apple-system, sans-serif; margin: 0; padding: 20px; background: #f5f5f5; }
.container { max-width: 1200px; margin: 0 auto; background: white; padding: 20px; border-radius: 8px; box-shadow: 0 2px 10px rgba(0,0,0,0.1); }
h1 { color: #333; border-bottom: 2px solid #7a5ba6; padding-bottom: 10px; }
.columns { display: grid; grid-template-columns: 1fr 1fr; gap: 20px; }
#element-list { list-style: none; padding: 0; }
#element-list li { padding: 6px 10px; border-left: 6px solid #ccc; margin-bottom: 4px; background: #fafafa; }
#element-list li.selected { background: #e8e0f4; font-weight: 600; }
#element-list li.separator { color: #999; font-style: italic; }
pre { background: #1e1e1e; color: #d4d4d4; padding: 12px; border-radius: 4px; overflow: auto; max-height: 420px; font-size: 12px; }
#status { font-size: 12px; color: #666; }
#status.error { color: #b00020; }
`

const pageScript = `
(function () {
  var status = document.getElementById('status');
  var list = document.getElementById('element-list');

  function show(id, text) { document.getElementById(id).textContent = text || ''; }

  function renderElements(state) {
    list.textContent = '';
    (state.elements || []).forEach(function (e) {
      var li = document.createElement('li');
      li.textContent = e.kind === 'separator' ? '(separator)' : e.name;
      li.className = e.kind + (e.id === state.selected ? ' selected' : '');
      if (e.colour) { li.style.borderLeftColor = e.colour; }
      list.appendChild(li);
    });
  }

  function loadSession() {
    fetch('/api/session').then(function (r) { return r.json(); }).then(renderElements);
  }

  function connect() {
    var proto = location.protocol === 'https:' ? 'wss://' : 'ws://';
    var ws = new WebSocket(proto + location.host + '/ws');
    ws.onopen = function () { status.className = ''; status.textContent = 'connected'; };
    ws.onmessage = function (ev) {
      var msg = JSON.parse(ev.data);
      if (msg.type === 'snapshot' && msg.snapshot) {
        var s = msg.snapshot;
        show('toolbox-xml', s.toolbox);
        show('workspace-xml', s.workspace);
        show('options-json', JSON.stringify(s.options, null, 2));
        status.className = '';
        status.textContent = 'generation ' + s.generation + ' (' + s.mode + ')';
        loadSession();
      } else if (msg.type === 'error') {
        status.className = 'error';
        status.textContent = msg.error;
      }
    };
    ws.onclose = function () {
      status.className = 'error';
      status.textContent = 'disconnected, retrying';
      setTimeout(connect, 1000);
    };
  }

  connect();
})();
`

// indexPage renders the live preview page. Its inline script and style
// carry the request's CSP nonce.
func indexPage(elements []model.ElementInfo, selected string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		nonce := templ.EscapeString(templ.GetNonce(ctx))

		var b strings.Builder
		b.WriteString("<!DOCTYPE html>\n<html lang=\"en\">\n<head>\n")
		b.WriteString("<meta charset=\"utf-8\">\n<title>Block Factory - Toolbox Preview</title>\n")
		b.WriteString("<style nonce=\"" + nonce + "\">" + pageStyle + "</style>\n")
		b.WriteString("</head>\n<body>\n<div class=\"container\">\n")
		b.WriteString("<h1>Block Factory</h1>\n")
		b.WriteString("<p id=\"status\">connecting</p>\n")
		b.WriteString("<div class=\"columns\">\n<section>\n<h2>Toolbox</h2>\n<ul id=\"element-list\">\n")
		for _, e := range elements {
			label := e.Name
			if e.Kind == model.KindSeparator {
				label = "(separator)"
			}
			class := string(e.Kind)
			if e.ID == selected {
				class += " selected"
			}
			b.WriteString("<li class=\"" + templ.EscapeString(class) + "\">" + templ.EscapeString(label) + "</li>\n")
		}
		b.WriteString("</ul>\n<h2>Toolbox XML</h2>\n<pre id=\"toolbox-xml\"></pre>\n</section>\n")
		b.WriteString("<section>\n<h2>Workspace XML</h2>\n<pre id=\"workspace-xml\"></pre>\n")
		b.WriteString("<h2>Injection options</h2>\n<pre id=\"options-json\"></pre>\n</section>\n</div>\n")
		b.WriteString("<footer>blockfactory " + templ.EscapeString(version.GetShortVersion()) + "</footer>\n")
		b.WriteString("</div>\n<script nonce=\"" + nonce + "\">" + pageScript + "</script>\n")
		b.WriteString("</body>\n</html>\n")

		_, err := io.WriteString(w, b.String())
		return err
	})
}

func (s *PreviewServer) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	elements := s.ctrl.Elements()
	selected := s.ctrl.SelectedID()
	s.mu.Unlock()

	templ.Handler(indexPage(elements, selected)).ServeHTTP(w, r)
}

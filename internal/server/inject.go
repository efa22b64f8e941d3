package server

import (
	"bytes"
	"context"
	"io"

	"github.com/a-h/templ"
)

// OverlayID is the element id of the in-page error overlay.
const OverlayID = "assetpipe-overlay"

const clientScript = `var ws,retry=0;
function overlay(html){var el=document.getElementById(cfg.overlay);
if(!html){if(el)el.remove();return}
if(!el){el=document.createElement("div");el.id=cfg.overlay;document.body.appendChild(el)}
el.innerHTML=html}
function css(paths,ts){var hit=false;
document.querySelectorAll('link[rel="stylesheet"]').forEach(function(l){
var u=new URL(l.href,location.href);
if(u.origin!==location.origin||paths.indexOf(u.pathname)<0)return;
u.searchParams.set("__assetpipe",ts);l.href=u.toString();hit=true});
if(!hit)location.reload()}
function connect(){
ws=new WebSocket((location.protocol==="https:"?"wss:":"ws:")+"//"+location.host+cfg.path);
ws.onopen=function(){retry=0};
ws.onmessage=function(e){var m=JSON.parse(e.data);
switch(m.type){
case "css_update":css(m.paths||[],Date.now());break;
case "full_reload":location.reload();break;
case "build_error":case "build_success":overlay(m.content);break}};
ws.onclose=function(){setTimeout(connect,Math.min(5000,250*Math.pow(2,retry++)))}}
connect();`

type clientConfig struct {
	Path    string `json:"path"`
	Overlay string `json:"overlay"`
}

// liveReloadClient renders the script connecting a page to the server.
func liveReloadClient(endpoint string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		cfg, err := templ.JSONString(clientConfig{Path: endpoint, Overlay: OverlayID})
		if err != nil {
			return err
		}
		_, err = io.WriteString(w, "<script data-assetpipe>(function(cfg){"+clientScript+"})("+cfg+");</script>")
		return err
	})
}

// errorOverlay renders the current failures, or nothing when there are none.
func errorOverlay(html string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if html == "" {
			return nil
		}
		if _, err := io.WriteString(w, `<div id="`+templ.EscapeString(OverlayID)+`">`); err != nil {
			return err
		}
		if err := templ.Raw(html).Render(ctx, w); err != nil {
			return err
		}
		_, err := io.WriteString(w, "</div>")
		return err
	})
}

// snippet renders everything injected into served pages.
func (s *DevServer) snippet(ctx context.Context) ([]byte, error) {
	var buf bytes.Buffer
	if err := errorOverlay(s.errors.ErrorOverlay()).Render(ctx, &buf); err != nil {
		return nil, err
	}
	if err := liveReloadClient(LiveReloadPath).Render(ctx, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// injectBeforeBody inserts snippet before the last closing body tag, or
// appends it when the document has none.
func injectBeforeBody(page, snippet []byte) []byte {
	idx := bytes.LastIndex(bytes.ToLower(page), []byte("</body>"))
	if idx < 0 {
		out := make([]byte, 0, len(page)+len(snippet))
		out = append(out, page...)
		return append(out, snippet...)
	}
	out := make([]byte, 0, len(page)+len(snippet))
	out = append(out, page[:idx]...)
	out = append(out, snippet...)
	return append(out, page[idx:]...)
}

package browser

import (
	"encoding/json"
	"fmt"

	"relcal/internal/dom"
)

// bindingName is the runtime binding page scripts call to signal changes.
const bindingName = "relcalSignal"

// pageConfig is handed to the page scripts as JSON.
type pageConfig struct {
	Event         string   `json:"event"`
	EventIDAttr   string   `json:"eventIdAttr"`
	Title         []string `json:"title"`
	TitleText     []string `json:"titleText"`
	LabelAttr     string   `json:"labelAttr"`
	LabelFallback string   `json:"labelFallback"`
	Marker        string   `json:"marker"`
	Anchor        string   `json:"anchor"`
}

func newPageConfig(sel dom.Selectors, anchor dom.Anchor) pageConfig {
	sel.Normalize()
	return pageConfig{
		Event:         sel.Event,
		EventIDAttr:   sel.EventIDAttr,
		Title:         sel.Title,
		TitleText:     sel.TitleText,
		LabelAttr:     sel.LabelAttr,
		LabelFallback: sel.LabelFallback,
		Marker:        dom.MarkerClass,
		Anchor:        string(anchor),
	}
}

// Shared helpers; cfg is in scope.
const helpersJS = `
  const titleOf = (ev) => {
    for (const s of cfg.title) {
      const t = ev.querySelector(s);
      if (t) return t;
    }
    return ev;
  };
  const markerOf = (title) => title.querySelector("." + cfg.marker);
`

const snapshotJS = `(() => {
  const cfg = %s;
` + helpersJS + `
  const events = Array.from(document.querySelectorAll(cfg.event)).map((ev, index) => {
    const title = titleOf(ev);
    const fallback = ev.querySelector(cfg.labelFallback);
    const label = ev.getAttribute(cfg.labelAttr) || title.getAttribute(cfg.labelAttr) ||
      (fallback ? fallback.textContent : "") || "";
    const m = markerOf(title);
    return {
      index,
      eventId: ev.getAttribute(cfg.eventIdAttr) || "",
      label,
      hasMarker: !!m,
      markerText: m ? m.textContent : "",
      markerClass: m ? m.className : "",
    };
  });
  return { events, markers: document.querySelectorAll("." + cfg.marker).length };
})()`

const applyJS = `((removeAll, ops) => {
  const cfg = %s;
` + helpersJS + `
  let applied = 0;
  if (removeAll) {
    document.querySelectorAll("." + cfg.marker).forEach((m) => { m.remove(); applied++; });
  }
  const nodes = document.querySelectorAll(cfg.event);
  for (const op of ops) {
    const ev = nodes[op.index];
    if (!ev || (ev.getAttribute(cfg.eventIdAttr) || "") !== op.eventId) continue;
    const title = titleOf(ev);
    const m = markerOf(title);
    switch (op.kind) {
      case "insert": {
        if (m) break;
        const span = document.createElement("span");
        span.className = op.class;
        span.textContent = op.text;
        let anchor = null;
        if (cfg.anchor === "title") {
          for (const s of cfg.titleText) {
            anchor = title.querySelector(s);
            if (anchor) break;
          }
        }
        if (anchor) anchor.parentNode.insertBefore(span, anchor);
        else title.insertBefore(span, title.firstChild);
        applied++;
        break;
      }
      case "text":
        if (m && m.textContent !== op.text) { m.textContent = op.text; applied++; }
        break;
      case "class":
        if (m && m.className !== op.class) { m.className = op.class; applied++; }
        break;
      case "remove":
        if (m) { m.remove(); applied++; }
        break;
    }
  }
  return applied;
})(%t, %s)`

// observerJS reports DOM mutations and tab visibility through the
// binding. Mutations are throttled to one call per 100ms; the scheduler
// coalesces further.
const observerJS = `(() => {
  if (window.__relcalObserver) return;
  window.__relcalObserver = true;
  const send = (kind) => {
    try { window.` + bindingName + `(kind); } catch (e) {}
  };
  let queued = false;
  const start = () => {
    new MutationObserver(() => {
      if (queued) return;
      queued = true;
      setTimeout(() => { queued = false; send("mutation"); }, 100);
    }).observe(document.body, { childList: true, subtree: true });
    document.addEventListener("visibilitychange", () => {
      if (!document.hidden) send("visible");
    });
  };
  if (document.body) start();
  else document.addEventListener("DOMContentLoaded", start);
})()`

func snapshotScript(cfg pageConfig) (string, error) {
	c, err := json.Marshal(cfg)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(snapshotJS, c), nil
}

func applyScript(cfg pageConfig, d *Document) (string, error) {
	c, err := json.Marshal(cfg)
	if err != nil {
		return "", err
	}
	ops := d.ops
	if ops == nil {
		ops = []op{}
	}
	o, err := json.Marshal(ops)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(applyJS, c, d.removeAll, o), nil
}

package agent

// agentVersion is bumped whenever the bootstrap script changes so a stale
// copy left in a long-lived tab gets replaced.
const agentVersion = 1

// scriptBootstrap installs window.__invoiceAgent. It is idempotent.
const scriptBootstrap = `(version) => {
  if (window.__invoiceAgent && window.__invoiceAgent.version === version) return true;
  const nextId = () => {
    window.__invoiceAgentSeq = (window.__invoiceAgentSeq || 0) + 1;
    return String(window.__invoiceAgentSeq);
  };
  window.__invoiceAgent = {
    version: version,
    annotate() {
      const all = document.body ? document.body.querySelectorAll('*') : [];
      for (const el of all) {
        if (!el.hasAttribute('data-ia-id')) el.setAttribute('data-ia-id', nextId());
        const cs = window.getComputedStyle(el);
        el.setAttribute('data-ia-fs', String(parseFloat(cs.fontSize) || 0));
        el.setAttribute('data-ia-fw', String(parseInt(cs.fontWeight, 10) || 400));
        if (cs.display === 'none' || cs.visibility === 'hidden') {
          el.setAttribute('data-ia-hidden', '1');
        } else {
          el.removeAttribute('data-ia-hidden');
        }
      }
      return all.length;
    },
    scroll(arg) {
      let moved = false;
      for (const sel of arg.selectors || []) {
        let nodes = [];
        try { nodes = document.querySelectorAll(sel); } catch (e) { continue; }
        for (const el of nodes) {
          const before = el.scrollTop;
          el.scrollTop = before + arg.step;
          if (el.scrollTop !== before) moved = true;
        }
      }
      if (!moved) {
        const before = window.scrollY;
        window.scrollBy(0, arg.step);
        moved = window.scrollY !== before;
      }
      return moved;
    },
    expand() {
      let n = 0;
      for (const d of document.querySelectorAll('details:not([open])')) { d.open = true; n++; }
      for (const el of document.querySelectorAll('[aria-expanded="false"]')) { el.click(); n++; }
      return n;
    },
  };
  return true;
}`

const scriptPing = `(version) => !!window.__invoiceAgent && window.__invoiceAgent.version === version`

const scriptAnnotate = `() => window.__invoiceAgent.annotate()`

const scriptScroll = `(arg) => window.__invoiceAgent.scroll(arg)`

const scriptExpand = `() => window.__invoiceAgent.expand()`

// scriptExists and scriptState do not depend on the bootstrap so they keep
// working across full navigations.
const scriptExists = `(selector) => { try { return !!document.querySelector(selector); } catch (e) { return false; } }`

const scriptState = `() => ({ url: location.href, readyState: document.readyState })`

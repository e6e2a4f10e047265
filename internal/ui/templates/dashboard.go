// Package templates holds the dashboard page and the HTML fragments the SSE
// endpoints patch into it. Components are hand-written templ components so
// fragment rendering shares one code path between the initial page load and
// live updates.
package templates

import (
	"context"
	"io"

	"github.com/a-h/templ"
)

const datastarCDN = "https://cdn.jsdelivr.net/gh/starfederation/datastar@v1.0.2/bundles/datastar.js"

const dashboardHead = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Clean Energy Funding Dashboard</title>
<script type="module" src="` + datastarCDN + `"></script>
<style>
:root { --bg: #0f172a; --panel: #1e293b; --text: #e2e8f0; --muted: #94a3b8; --accent: #34d399; }
* { box-sizing: border-box; }
body { margin: 0; font-family: system-ui, sans-serif; background: var(--bg); color: var(--text); }
header { padding: 1.5rem 2rem; display: flex; align-items: center; justify-content: space-between; }
header h1 { margin: 0; font-size: 1.4rem; }
main { padding: 0 2rem 2rem; display: grid; gap: 1.5rem; }
section { background: var(--panel); border-radius: 8px; padding: 1.25rem; }
section h2 { margin: 0 0 1rem; font-size: 1rem; color: var(--muted); text-transform: uppercase; letter-spacing: 0.05em; }
.cards { display: grid; grid-template-columns: repeat(auto-fit, minmax(160px, 1fr)); gap: 1rem; }
.card { background: var(--bg); border-radius: 6px; padding: 1rem; }
.card .value { font-size: 1.5rem; font-weight: 700; color: var(--accent); }
.card .label { font-size: 0.8rem; color: var(--muted); }
table.modern-table { width: 100%; border-collapse: collapse; font-size: 0.9rem; }
table.modern-table th, table.modern-table td { padding: 0.5rem 0.75rem; text-align: left; border-bottom: 1px solid #334155; }
table.modern-table th { color: var(--muted); font-weight: 600; }
.badge { background: #334155; border-radius: 999px; padding: 0.15rem 0.6rem; font-size: 0.75rem; }
.share-bar { background: #334155; border-radius: 4px; height: 8px; overflow: hidden; }
.share-bar span { display: block; height: 100%; background: var(--accent); }
.insights li { margin-bottom: 0.5rem; }
button.refresh { background: var(--accent); color: #052e16; border: 0; border-radius: 6px; padding: 0.5rem 1rem; font-weight: 600; cursor: pointer; }
.placeholder { color: var(--muted); font-style: italic; }
</style>
</head>
`

const dashboardBody = `<body>
<header>
<h1>Federal Clean Energy Funding</h1>
<button class="refresh" data-on-click="@get('/sse/refresh')">Refresh</button>
</header>
<main>
<section data-on-load="@get('/sse/summary')">
<h2>Overview</h2>
<div id="summary-content"><p class="placeholder">Loading summary…</p></div>
</section>
<section data-on-load="@get('/sse/states')">
<h2>Funding by State</h2>
<div id="states-content"><p class="placeholder">Loading states…</p></div>
</section>
<section data-on-load="@get('/sse/technologies')">
<h2>Technology Breakdown</h2>
<div id="technologies-content"><p class="placeholder">Loading technologies…</p></div>
</section>
<section data-on-load="@get('/sse/insights')">
<h2>Findings</h2>
<div id="insights-content"><p class="placeholder">Loading findings…</p></div>
</section>
<section>
<h2>Timeline</h2>
<div id="timeline-content"><p class="placeholder">Timeline data loads with refresh.</p></div>
</section>
</main>
</body>
</html>
`

// Dashboard renders the full page. Fragment sections start as placeholders
// and are patched over SSE once their data-on-load triggers fire.
func Dashboard() templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := io.WriteString(w, dashboardHead); err != nil {
			return err
		}
		_, err := io.WriteString(w, dashboardBody)
		return err
	})
}

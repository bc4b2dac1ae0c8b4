package control

import "net/http"

const statusPage = `<!DOCTYPE html>
<html>
<head><title>Load Generator</title></head>
<body>
<h1>Load Generator</h1>
<p>Control plane is up. See <a href="/api/status">/api/status</a>,
<a href="/api/overview">/api/overview</a>, and
<a href="/api/reports">/api/reports</a> for live state.</p>
<p>Start a test with <code>POST /api/start {"users":N,"duration":"30s","ramp":"5/s"}</code>.</p>
</body>
</html>
`

func (c *Controller) handleStatusPage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(statusPage))
}

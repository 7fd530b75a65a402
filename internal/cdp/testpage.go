package cdp

import (
	"net/http"
)

// TestPageHTML is a self-contained test page. It writes a mix of console
// output over a few ticks and then publishes window.testFailures and
// window.testsDone. The failure count comes from the "failures" query
// parameter and defaults to 0; "delay" sets the milliseconds before
// completion.
const TestPageHTML = `<!DOCTYPE html>
<html>
<head>
    <title>browser_driver self-test</title>
</head>
<body>
    <h1>browser_driver self-test</h1>
    <pre id="out"></pre>
    <script>
        (function () {
            var params = new URLSearchParams(location.search);
            var failures = parseInt(params.get('failures') || '0', 10) || 0;
            var delay = parseInt(params.get('delay') || '250', 10);
            var suites = ['parser', 'drain', 'poller'];

            console.log('Running %d suites', suites.length);
            console.info('line one\nline two');

            var i = 0;
            var timer = setInterval(function () {
                if (i < suites.length) {
                    console.log('suite %s: %d tests', suites[i], (i + 1) * 3);
                    i++;
                    return;
                }
                clearInterval(timer);

                for (var f = 0; f < failures; f++) {
                    console.error('FAILED: case ' + (f + 1));
                }
                console.warn('%d of %d suites had failures', failures > 0 ? 1 : 0, suites.length);
                console.log('done');

                window.testFailures = failures;
                window.testsDone = true;
                document.getElementById('out').textContent = 'failures: ' + failures;
            }, Math.max(delay / (suites.length + 1), 1));
        })();
    </script>
</body>
</html>`

// TestPageHandler serves TestPageHTML for every request.
func TestPageHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		_, _ = w.Write([]byte(TestPageHTML))
	})
}

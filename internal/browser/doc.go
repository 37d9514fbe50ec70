// Package browser provides the browser process pool and the recorded-step
// player.
//
// # Pool
//
// A Pool caches live browser processes keyed by LaunchKey (executable,
// profile directory, headless and devtools flags). Acquire returns the
// cached browser for a key or launches a new one on the first free
// remote-debugging port at or above the configured start port. Release
// either keeps the browser (reuse policy) or closes it once its last
// borrower has released it.
//
// Only map access is done under the pool mutex; launching and closing
// browsers happen outside it. When two runs race to launch the same key the
// loser closes its duplicate and shares the winner's browser.
//
// # Player
//
// A Player replays a StepScript, the JSON produced by the Chrome DevTools
// recorder, on one page of a pooled browser:
//
//	setViewport  deferred until the first page exists
//	navigate     opens the page lazily; non-2xx responses fail the step
//	click        first candidate selector matching a live element wins
//	change       like click, then fills the resolved value
//	keyDown/Up   forwarded to the page keyboard
//
// Selectors and values may reference names from the resolver with
// <identifier>; unresolved references are used literally. The first failing
// step aborts the run with "step <i> (<type>): <message>". Every call into
// the browser layer is guarded so a driver panic becomes a failed
// result.Result, and the page and borrowed browser are always given back.
//
// # Playwright
//
// PlaywrightLauncher starts the browser through internal/process with
// --remote-debugging-port and attaches with Playwright's ConnectOverCDP.
package browser

package chrome

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/devicelab-dev/flowtest/pkg/core"
)

func TestBind_EndsWithCaller(t *testing.T) {
	parent := context.Background()

	ctx, cancel := context.WithCancel(context.Background())
	runCtx, done := bind(parent, ctx)
	defer done()
	cancel()
	select {
	case <-runCtx.Done():
	case <-time.After(time.Second):
		t.Fatal("bound context not cancelled with caller")
	}
	if !errors.Is(runCtx.Err(), context.Canceled) {
		t.Errorf("Err() = %v, want Canceled", runCtx.Err())
	}
}

func TestBind_CopiesDeadline(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	runCtx, done := bind(context.Background(), ctx)
	defer done()

	if _, ok := runCtx.Deadline(); !ok {
		t.Fatal("bound context has no deadline")
	}
	<-runCtx.Done()
	if !errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		t.Errorf("Err() = %v, want DeadlineExceeded", runCtx.Err())
	}
}

func TestBind_KeepsParentValues(t *testing.T) {
	type key struct{}
	parent := context.WithValue(context.Background(), key{}, "tab")
	runCtx, done := bind(parent, context.Background())
	defer done()
	if runCtx.Value(key{}) != "tab" {
		t.Error("bound context lost parent value")
	}
	done()
	if runCtx.Err() == nil {
		t.Error("done() did not cancel bound context")
	}
}

const testPage = `<!doctype html>
<html><body>
<h1>Login</h1>
<form onsubmit="event.preventDefault(); document.querySelector('#msg').textContent = 'Welcome ' + document.querySelector('#user').value; document.querySelector('#msg').style.display = 'block';">
<input id="user" name="user">
<input id="tos" type="checkbox">
<select id="country"><option value="us">United States</option><option value="ca">Canada</option></select>
<button id="go" type="submit">Sign in</button>
</form>
<p id="msg" style="display:none"></p>
</body></html>`

// TestSession_AgainstChrome drives a real browser. It runs only when
// FLOWTEST_CHROME is set.
func TestSession_AgainstChrome(t *testing.T) {
	if os.Getenv("FLOWTEST_CHROME") == "" {
		t.Skip("set FLOWTEST_CHROME=1 to run against a local Chrome")
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, testPage)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	b, err := NewLauncher().Launch(ctx, core.LaunchOptions{Headless: true})
	if err != nil {
		t.Fatalf("Launch() error = %v", err)
	}
	defer b.Close()

	videoDir := t.TempDir()
	sess, err := b.NewSession(ctx, core.SessionOptions{
		Viewport: core.Viewport{Width: 1280, Height: 720},
		VideoDir: videoDir,
	})
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}
	defer sess.Close()

	if err := sess.Navigate(ctx, srv.URL+"/login", core.LoadStateNetworkIdle); err != nil {
		t.Fatalf("Navigate() error = %v", err)
	}
	if err := sess.WaitForURL(ctx, "**/login"); err != nil {
		t.Fatalf("WaitForURL() error = %v", err)
	}
	if err := sess.Locate("#user").Fill(ctx, "ada"); err != nil {
		t.Fatalf("Fill() error = %v", err)
	}
	if err := sess.Locate("#tos").Check(ctx); err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if err := sess.Locate("#country").SelectOption(ctx, "Canada"); err != nil {
		t.Fatalf("SelectOption() error = %v", err)
	}
	if err := sess.Locate("#go").Click(ctx); err != nil {
		t.Fatalf("Click() error = %v", err)
	}
	if err := sess.WaitForSelector(ctx, "#msg", core.StateVisible); err != nil {
		t.Fatalf("WaitForSelector() error = %v", err)
	}
	text, err := sess.Locate("#msg").Text(ctx)
	if err != nil || text != "Welcome ada" {
		t.Errorf("Text() = %q, %v", text, err)
	}
	n, err := sess.Locate("option").Count(ctx)
	if err != nil || n != 2 {
		t.Errorf("Count() = %d, %v", n, err)
	}
	if _, err := sess.Locate("#missing").Text(ctx); !errors.Is(err, core.ErrElementNotFound) {
		t.Errorf("Text() on missing element error = %v", err)
	}
	if v, err := sess.Evaluate(ctx, "1 + 2"); err != nil || v != float64(3) {
		t.Errorf("Evaluate() = %v, %v", v, err)
	}
	if v, err := sess.Evaluate(ctx, "undefined"); err != nil || v != nil {
		t.Errorf("Evaluate(undefined) = %v, %v", v, err)
	}

	shot := filepath.Join(t.TempDir(), "shots", "page.png")
	if err := sess.Screenshot(ctx, shot, true); err != nil {
		t.Fatalf("Screenshot() error = %v", err)
	}
	if fi, err := os.Stat(shot); err != nil || fi.Size() == 0 {
		t.Errorf("screenshot not written: %v", err)
	}

	dir, err := sess.VideoPath()
	if err != nil || filepath.Dir(dir) != videoDir {
		t.Errorf("VideoPath() = %q, %v", dir, err)
	}
}

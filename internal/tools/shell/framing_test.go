package shell

import (
	"strings"
	"testing"
)

// =============================================================================
// COMMAND FRAMING TESTS
// =============================================================================

func TestFrameCommandDefault(t *testing.T) {
	t.Parallel()

	framed := frameCommand("echo hello", "__M__")
	if !strings.Contains(framed, "echo hello </dev/null; ") {
		t.Errorf("null redirect missing: %q", framed)
	}
	if !strings.Contains(framed, `echo "__M__ EXIT_CODE:$?"`) {
		t.Errorf("trailer missing: %q", framed)
	}
	if !strings.HasSuffix(framed, "\n") {
		t.Error("framed command must end with newline")
	}
}

func TestFrameCommandBackgrounded(t *testing.T) {
	t.Parallel()

	framed := frameCommand("sleep 30 &", "__M__")
	// The echo lands on its own line right after the fork, no null redirect.
	if strings.Contains(framed, "</dev/null") {
		t.Errorf("backgrounded command must not get a null redirect: %q", framed)
	}
	if !strings.Contains(framed, "sleep 30 &\necho \"__M__ EXIT_CODE:$?\"") {
		t.Errorf("trailer misplaced: %q", framed)
	}
}

func TestFrameCommandAndChainIsNotBackgrounded(t *testing.T) {
	t.Parallel()

	framed := frameCommand("true &&", "__M__")
	if !strings.Contains(framed, "</dev/null") {
		t.Errorf("&& chain should take the default shape: %q", framed)
	}
}

func TestFrameCommandHeredoc(t *testing.T) {
	t.Parallel()

	framed := frameCommand("cat <<EOF\nhello\nEOF", "__M__")
	if strings.Contains(framed, "</dev/null") {
		t.Errorf("heredoc must not get a null redirect: %q", framed)
	}
	if !strings.Contains(framed, "EOF\necho \"__M__ EXIT_CODE:$?\"") {
		t.Errorf("trailer must follow on its own line: %q", framed)
	}
}

// =============================================================================
// MARKER SCANNING TESTS
// =============================================================================

func TestScanForMarkerComplete(t *testing.T) {
	t.Parallel()

	code, found, _ := scanForMarker("output\n__M__ EXIT_CODE:42\n", "__M__")
	if !found || code != 42 {
		t.Errorf("found=%v code=%d", found, code)
	}
}

func TestScanForMarkerSplitAcrossChunks(t *testing.T) {
	t.Parallel()

	// First chunk ends mid-marker.
	_, found, keep := scanForMarker("output\n__M", "__M__")
	if found {
		t.Fatal("incomplete marker must not match")
	}

	// Second chunk completes marker and token but not the terminator.
	window := keep + "__ EXIT_CODE:4"
	_, found, keep = scanForMarker(window, "__M__")
	if found {
		t.Fatal("unterminated digits must not match")
	}

	// Newline arrives.
	code, found, _ := scanForMarker(keep+"2\n", "__M__")
	if !found || code != 42 {
		t.Errorf("found=%v code=%d", found, code)
	}
}

func TestScanForMarkerKeepsBoundedTail(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("x", 100000)
	_, found, keep := scanForMarker(long, "__M__")
	if found {
		t.Fatal("no marker present")
	}
	if len(keep) > 64 {
		t.Errorf("window tail unbounded: %d bytes", len(keep))
	}
}

func TestScanForMarkerZeroExit(t *testing.T) {
	t.Parallel()

	code, found, _ := scanForMarker("__M__ EXIT_CODE:0\n", "__M__")
	if !found || code != 0 {
		t.Errorf("found=%v code=%d", found, code)
	}
}

// =============================================================================
// RENDERING TESTS
// =============================================================================

func TestStripMarker(t *testing.T) {
	t.Parallel()

	got := stripMarker("hello\n__M__ EXIT_CODE:0\n", "__M__")
	if got != "hello" {
		t.Errorf("stripMarker = %q", got)
	}

	got = stripMarker("no marker here\n", "__M__")
	if got != "no marker here" {
		t.Errorf("stripMarker = %q", got)
	}
}

func TestOutputBlocks(t *testing.T) {
	t.Parallel()

	if got := outputBlocks("out", ""); got != "out" {
		t.Errorf("stdout only = %q", got)
	}
	if got := outputBlocks("", "err"); got != "err" {
		t.Errorf("stderr only = %q", got)
	}
	got := outputBlocks("out", "err")
	if got != "STDOUT:\nout\nSTDERR:\nerr" {
		t.Errorf("both = %q", got)
	}
	if got := outputBlocks("", ""); got != "" {
		t.Errorf("empty = %q", got)
	}
}

func TestNewProcessIDFormat(t *testing.T) {
	t.Parallel()

	id := NewProcessID()
	if !strings.HasPrefix(id, "proc_") {
		t.Errorf("id = %q", id)
	}
	parts := strings.SplitN(id, "_", 3)
	if len(parts) != 3 || parts[1] == "" || parts[2] == "" {
		t.Errorf("id shape wrong: %q", id)
	}
	if id == NewProcessID() {
		t.Error("ids must be unique")
	}
}

func TestNewMarkerUnique(t *testing.T) {
	t.Parallel()

	a, b := newMarker(), newMarker()
	if a == b {
		t.Error("markers must be unique per call")
	}
	if !strings.HasPrefix(a, markerPrefix) || !strings.HasSuffix(a, "__") {
		t.Errorf("marker shape wrong: %q", a)
	}
}

package logger

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

import (
	"github.com/fatih/color"
)

// Returns the formatted server URL with cyan color for console output.
func GetServerHost(addr string) string {
	serverURLColor := color.New(color.FgCyan).SprintFunc()
	return serverURLColor(fmt.Sprintf("http://%s", addr))
}

// Prints a standardized success message when a listener starts accepting.
func LogListenerStart(id, addr string) {
	LogSuccess(fmt.Sprintf("Listener %q started on %s", id, GetServerHost(addr)))
}

// LogRequest logs the outcome of one dispatched inbound request: method,
// path, the target id the caller attributes the response to ("-" when it
// names none), final status, and total duration.
func LogRequest(requestID, method, path, targetID string, status int, duration time.Duration) {
	if JSONMode {
		logRequestJSON(requestID, method, path, targetID, status, duration)
		return
	}

	methodColors := map[string]*color.Color{
		"GET":     color.New(color.FgHiGreen),
		"POST":    color.New(color.FgHiCyan),
		"PUT":     color.New(color.FgYellow),
		"DELETE":  color.New(color.FgHiRed),
		"PATCH":   color.New(color.FgMagenta),
		"OPTIONS": color.New(color.FgHiWhite),
	}

	methodColor, ok := methodColors[method]
	if !ok {
		methodColor = color.New(color.FgWhite, color.Bold)
	}

	var statusColor *color.Color
	switch {
	case status >= 500:
		statusColor = color.New(color.FgRed, color.Bold)
	case status >= 400:
		statusColor = color.New(color.FgHiYellow)
	case status >= 300:
		statusColor = color.New(color.FgYellow)
	case status >= 200:
		statusColor = color.New(color.FgGreen)
	default:
		statusColor = color.New(color.FgWhite)
	}

	pathColor := color.New(color.FgHiBlack)
	durationColor := color.New(color.FgMagenta)
	targetColor := color.New(color.FgHiBlue, color.Bold)
	reqIDColor := color.New(color.FgHiBlack)

	msg := fmt.Sprintf(
		"%s %s %s target=%s",
		methodColor.Sprintf("%-7s", method),
		pathColor.Sprint(path),
		reqIDColor.Sprintf("req=%s", requestID),
		targetColor.Sprint(targetID),
	)

	if status > 0 {
		statusText := http.StatusText(status)
		msg += " " + statusColor.Sprintf("%d %s", status, statusText)
	}
	if duration > 0 {
		msg += " " + durationColor.Sprintf("%.2fms", float64(duration.Microseconds())/1000.0)
	}

	fmt.Println(msg)
}

type requestLogLine struct {
	Level     string  `json:"level"`
	RequestID string  `json:"request_id"`
	Method    string  `json:"method"`
	Path      string  `json:"path"`
	TargetID  string  `json:"target_id"`
	Status    int     `json:"status"`
	DurationMs float64 `json:"duration_ms"`
}

func logRequestJSON(requestID, method, path, targetID string, status int, duration time.Duration) {
	line := requestLogLine{
		Level: "info", RequestID: requestID, Method: method, Path: path,
		TargetID: targetID, Status: status,
		DurationMs: float64(duration.Microseconds()) / 1000.0,
	}
	b, err := json.Marshal(line)
	if err != nil {
		return
	}
	fmt.Println(string(b))
}

// --- Log Helpers --- //
//
// All helpers delegate to logWithType, which handles consistent formatting,
// colorization, and the --json-log switch.

func LogSuccess(msg string, addEmptyLines ...int) {
	logWithType("OK", successStyle, msg, addEmptyLines...)
}

func LogError(msg string, addEmptyLines ...int) {
	logWithType("ERROR", errorStyle, msg, addEmptyLines...)
}

func LogWarn(msg string, addEmptyLines ...int) {
	logWithType("WARN", warnStyle, msg, addEmptyLines...)
}

func LogInfo(msg string, addEmptyLines ...int) {
	logWithType("INFO", infoStyle, msg, addEmptyLines...)
}

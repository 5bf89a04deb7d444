package logger

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

import "github.com/fatih/color"

type Config struct {
	ShowTimestamp bool
}

var LoggerConfig = Config{
	ShowTimestamp: true,
}

// JSONMode switches every log call site to emit single-line JSON instead of
// ANSI-colored text, set once at startup from the --json-log CLI flag.
var JSONMode bool

var (
	successStyle   = color.New(color.FgGreen, color.Bold)
	errorStyle     = color.New(color.FgRed, color.Bold)
	warnStyle      = color.New(color.FgYellow, color.Bold)
	infoStyle      = color.New(color.FgCyan)
	messageStyle   = color.New(color.FgHiWhite)
	timestampStyle = color.New(color.FgHiBlack)
)

func printEmptyLines(count int) {
	if count <= 0 {
		return
	}
	fmt.Print(strings.Repeat("\n", count))
}

func printTimestamp() string {
	if LoggerConfig.ShowTimestamp {
		return timestampStyle.Sprintf("[%s] ", time.Now().Format("15:04:05"))
	}
	return ""
}

type jsonLogLine struct {
	Level   string `json:"level"`
	Message string `json:"message"`
	Time    string `json:"time"`
}

// logWithType is the shared sink for LogSuccess/LogError/LogWarn/LogInfo.
// prefix: log type (OK, ERROR, WARN, INFO). style: color/style for text
// mode. addEmptyLines: optional [0]=line count [1]=position(1 before,
// -1 after) [2]=leading spaces, ignored entirely in JSON mode.
func logWithType(prefix string, style *color.Color, msg string, addEmptyLines ...int) {
	if JSONMode {
		b, err := json.Marshal(jsonLogLine{Level: strings.ToLower(prefix), Message: msg, Time: time.Now().Format(time.RFC3339)})
		if err == nil {
			fmt.Println(string(b))
		}
		return
	}

	n := 0
	space := 0
	position := 1

	if len(addEmptyLines) > 0 {
		n = addEmptyLines[0]
	}
	if len(addEmptyLines) > 1 {
		position = addEmptyLines[1]
	}
	if len(addEmptyLines) > 2 {
		space = addEmptyLines[2]
	}

	if position > 0 {
		printEmptyLines(n)
	}

	fmt.Print(strings.Repeat(" ", space))
	fmt.Print(printTimestamp())
	fmt.Print(style.Sprintf("[%s] ", prefix))
	fmt.Println(messageStyle.Sprint(msg))

	if position == -1 {
		printEmptyLines(n)
	}
}

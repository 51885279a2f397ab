package redis

// RESP reply framing. Every command returns one of these fully framed
// strings; the server writes them to the wire verbatim.

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	replyOK   = "+OK\r\n"
	replyPong = "+PONG\r\n"
	replyNil  = "$-1\r\n"
)

func intReply(n int64) string {
	return ":" + strconv.FormatInt(n, 10) + "\r\n"
}

func bulkReply(s string) string {
	return "$" + strconv.Itoa(len(s)) + "\r\n" + s + "\r\n"
}

func arrayReply(items []string) string {
	var b strings.Builder
	b.WriteString("*" + strconv.Itoa(len(items)) + "\r\n")
	for _, it := range items {
		b.WriteString(bulkReply(it))
	}
	return b.String()
}

func errReply(format string, args ...interface{}) string {
	return "-ERR " + fmt.Sprintf(format, args...) + "\r\n"
}

func wrongArgsReply(cmd string) string {
	return errReply("wrong number of arguments for '%s' command", strings.ToLower(cmd))
}

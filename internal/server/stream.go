package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/shootingstick/ss"
)

// streamRows writes a view response one row per line, flushing as it goes,
// so large results never sit in memory. Once the header is out the status
// can no longer change; an error cuts the response short and is returned for
// logging.
func streamRows(c *gin.Context, rows *ss.Rows, withSeq bool) error {
	w := c.Writer
	c.Header("Content-Type", "application/json")
	c.Status(http.StatusOK)

	var head bytes.Buffer
	head.WriteString(`{"total_rows":`)
	head.WriteString(strconv.FormatUint(rows.TotalRows(), 10))
	head.WriteString(`,"offset":`)
	head.WriteString(strconv.Itoa(rows.Offset()))
	if withSeq {
		head.WriteString(`,"update_seq":`)
		head.WriteString(strconv.FormatUint(rows.UpdateSeq(), 10))
	}
	head.WriteString(`,"rows":[`)
	if _, err := w.Write(head.Bytes()); err != nil {
		return err
	}

	first := true
	for rows.Next() {
		line, err := json.Marshal(rows.Row())
		if err != nil {
			return err
		}
		sep := ",\r\n"
		if first {
			sep = "\r\n"
			first = false
		}
		if _, err := w.WriteString(sep); err != nil {
			return err
		}
		if _, err := w.Write(line); err != nil {
			return err
		}
		w.Flush()
	}
	if err := rows.Err(); err != nil {
		return err
	}
	_, err := w.WriteString("\r\n]}\r\n")
	return err
}

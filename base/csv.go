// Copyright 2020 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package base

import (
	"bufio"
	"strings"

	"github.com/juju/errors"
)

// ReadLines scans delimited records from sc and passes the fields of every
// record to handler together with the zero-based number of the line the record
// starts on. Fields may be quoted with '"'; a quoted field may contain the
// separator, escaped quotes ("") and line breaks. Scanning stops at the first
// error returned by handler.
func ReadLines(sc *bufio.Scanner, sep string, handler func(line int, fields []string) error) error {
	if sep == "" {
		return errors.NotValidf("empty separator")
	}
	var (
		lineCount = 0             // number of the current line
		startLine = 0             // line the current record starts on
		fields    []string        // fields of the current record
		builder   strings.Builder // current field
		quoted    = false         // inside a quoted field
	)
	for sc.Scan() {
		line := sc.Text()
		if quoted {
			builder.WriteString("\r\n")
		} else {
			startLine = lineCount
		}
		for i := 0; i < len(line); {
			switch {
			case !quoted && strings.HasPrefix(line[i:], sep):
				fields = append(fields, builder.String())
				builder.Reset()
				i += len(sep)
			case line[i] == '"' && quoted && i+1 < len(line) && line[i+1] == '"':
				builder.WriteByte('"')
				i += 2
			case line[i] == '"':
				quoted = !quoted
				i++
			default:
				builder.WriteByte(line[i])
				i++
			}
		}
		if !quoted {
			fields = append(fields, builder.String())
			builder.Reset()
			if err := handler(startLine, fields); err != nil {
				return err
			}
			fields = nil
		}
		lineCount++
	}
	return errors.Trace(sc.Err())
}

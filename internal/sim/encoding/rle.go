package encoding

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
)

// EncodeRLE encodes a token sequence into base64(varint pairs).
// The pairs are (token, run_len) repeated.
func EncodeRLE(tokens []byte) string {
	var buf bytes.Buffer
	var tmp [binary.MaxVarintLen64]byte

	i := 0
	for i < len(tokens) {
		b := tokens[i]
		run := 1
		for j := i + 1; j < len(tokens) && tokens[j] == b && run < 1<<31; j++ {
			run++
		}

		n := binary.PutUvarint(tmp[:], uint64(b))
		buf.Write(tmp[:n])
		n = binary.PutUvarint(tmp[:], uint64(run))
		buf.Write(tmp[:n])

		i += run
	}

	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func DecodeRLE(b64 string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, err
	}
	var out []byte
	for i := 0; i < len(raw); {
		b, n := binary.Uvarint(raw[i:])
		if n <= 0 {
			return nil, fmt.Errorf("bad varint at %d", i)
		}
		i += n
		run, n := binary.Uvarint(raw[i:])
		if n <= 0 {
			return nil, fmt.Errorf("bad varint at %d", i)
		}
		i += n
		if b > 0xFF {
			return nil, fmt.Errorf("token too large: %d", b)
		}
		if run == 0 || run > 1<<31 {
			return nil, fmt.Errorf("bad run length %d", run)
		}
		out = append(out, bytes.Repeat([]byte{byte(b)}, int(run))...)
	}
	return out, nil
}

// Compact renders a token string for humans: runs longer than one get a count
// prefix, so "NNNESSS" becomes "3NE3S".
func Compact(s string) string {
	var sb strings.Builder
	for i := 0; i < len(s); {
		j := i + 1
		for j < len(s) && s[j] == s[i] {
			j++
		}
		if j-i > 1 {
			sb.WriteString(strconv.Itoa(j - i))
		}
		sb.WriteByte(s[i])
		i = j
	}
	return sb.String()
}

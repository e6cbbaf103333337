package core

import (
	"bufio"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/gogs/chardet"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"
	"golang.org/x/text/transform"
)

// charsetSampleSize is how much of a text source is inspected to guess its charset.
const charsetSampleSize = 64 * 1024

// minCharsetConfidence is the chardet confidence needed to trust a guess.
const minCharsetConfidence = 40

// fallbackEncoding is used when a sample is not UTF-8 and detection fails.
// Spreadsheet exports from Persian and Arabic Windows installs use 1256.
var fallbackEncoding encoding.Encoding = charmap.Windows1256

// decodeToUTF8 returns a reader producing UTF-8 from r, along with the name
// of the charset it decided on. Sources that already look like UTF-8 are
// passed through a sanitizer instead of a decoder.
func decodeToUTF8(r io.Reader) (io.Reader, string, error) {
	br := bufio.NewReaderSize(r, charsetSampleSize)
	sample, err := br.Peek(charsetSampleSize)
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return nil, "", err
	}

	if looksUTF8(sample, err == io.EOF) {
		return newUTF8Sanitizer(br), "UTF-8", nil
	}

	name := "windows-1256"
	enc := fallbackEncoding
	if result, derr := chardet.NewTextDetector().DetectBest(sample); derr == nil && result.Confidence >= minCharsetConfidence {
		if detected := encodingByName(result.Charset); detected != nil {
			name = result.Charset
			enc = detected
		}
	}
	return transform.NewReader(br, enc.NewDecoder()), name, nil
}

// looksUTF8 reports whether sample is valid UTF-8, tolerating a sequence
// cut off by the sample boundary.
func looksUTF8(sample []byte, complete bool) bool {
	if utf8.Valid(sample) {
		return true
	}
	if complete {
		return false
	}
	for cut := 1; cut < utf8.UTFMax && cut <= len(sample); cut++ {
		if utf8.Valid(sample[:len(sample)-cut]) {
			return true
		}
	}
	return false
}

// encodingByName maps an IANA charset name reported by chardet to an encoding.
func encodingByName(name string) encoding.Encoding {
	switch strings.ToLower(name) {
	case "windows-1256", "cp1256":
		return charmap.Windows1256
	case "windows-1252", "cp1252":
		return charmap.Windows1252
	case "windows-1251", "cp1251":
		return charmap.Windows1251
	case "iso-8859-1", "latin1":
		return charmap.ISO8859_1
	case "iso-8859-6":
		return charmap.ISO8859_6
	case "iso-8859-15", "latin9":
		return charmap.ISO8859_15
	case "iso-8859-2", "latin2":
		return charmap.ISO8859_2
	case "koi8-r":
		return charmap.KOI8R
	case "shift_jis", "sjis":
		return japanese.ShiftJIS
	case "euc-jp":
		return japanese.EUCJP
	case "euc-kr":
		return korean.EUCKR
	case "gb18030":
		return simplifiedchinese.GB18030
	case "gbk", "gb2312":
		return simplifiedchinese.GBK
	case "big5":
		return traditionalchinese.Big5
	default:
		return nil
	}
}

package manifest

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/t7a/chunkbase/fingerprint"
)

// test boolean condition
func tassert(t *testing.T, cond bool, txt string, args ...interface{}) {
	t.Helper() // cause file:line info to show caller
	if !cond {
		t.Fatalf(txt, args...)
	}
}

func digest(t *testing.T, s string) string {
	t.Helper()
	d, err := fingerprint.Hash(fingerprint.Blake3, []byte(s))
	tassert(t, err == nil, "%v", err)
	return d
}

// mkmanifest builds a valid manifest of n full 16-byte chunks.
func mkmanifest(t *testing.T, mode Mode, n int) *Manifest {
	m := New("movie.mp4", digest(t, "whole"), int64(16*n), 16, mode, "")
	for i := 1; i <= n; i++ {
		e := Entry{Hash: digest(t, ChunkName(i))}
		if mode == ModeZip {
			e.Name = "name" + ChunkName(i)
		}
		m.Add(i, e)
	}
	return m
}

func TestRoundTrip(t *testing.T) {
	for _, mode := range []Mode{ModeNone, ModeZip} {
		m := mkmanifest(t, mode, 12)
		m.InfoFile = "/somewhere/info.json"
		tassert(t, m.ChunkCount == 12, "chunk count %d", m.ChunkCount)
		tassert(t, m.Validate() == nil, "%s: %v", mode, m.Validate())

		var b bytes.Buffer
		err := m.Encode(&b)
		tassert(t, err == nil, "%v", err)
		txt := b.String()
		tassert(t, strings.Contains(txt, `"compression_mode": "`+string(mode)+`"`), "mode missing:\n%s", txt)
		tassert(t, strings.Contains(txt, `"info_file": "/somewhere/info.json"`), "info_file missing:\n%s", txt)
		// keys are in numeric, not lexical, order
		tassert(t, strings.Index(txt, `"2":`) < strings.Index(txt, `"10":`), "list order:\n%s", txt)

		got, err := Decode(&b)
		tassert(t, err == nil, "%s: %v", mode, err)
		tassert(t, got.InfoFile == "", "info_file not ignored: %q", got.InfoFile)
		m.InfoFile = ""
		tassert(t, pretty(m) == pretty(got), "expected %s got %s", pretty(m), pretty(got))
	}
}

func TestEmpty(t *testing.T) {
	m := New("empty", digest(t, ""), 0, 65536, ModeNone, fingerprint.Blake3)
	buf, err := m.Marshal()
	tassert(t, err == nil, "%v", err)
	tassert(t, bytes.Contains(buf, []byte(`"list": {}`)), "list:\n%s", buf)
	got, err := Decode(bytes.NewReader(buf))
	tassert(t, err == nil, "%v", err)
	tassert(t, got.ChunkCount == 0 && len(got.List) == 0, "%#v", got)
}

func TestDecodeLegacy(t *testing.T) {
	h := digest(t, "whole")
	c := digest(t, "chunk")

	// no compression_mode and no hash_algo: both inferred
	plain := `{"file_name":"a","file_hash":"` + h + `","file_size":10,"chunk_size":16,"chunk_count":1,"list":{"1":"` + c + `"}}`
	m, err := Decode(strings.NewReader(plain))
	tassert(t, err == nil, "%v", err)
	tassert(t, m.Mode == ModeNone, "mode %q", m.Mode)
	tassert(t, m.Algo == fingerprint.Blake3, "algo %q", m.Algo)
	name, ok := m.Artifact(1)
	tassert(t, ok && name == "chunk.00000001", "artifact %q %v", name, ok)

	zipped := `{"file_name":"a","file_hash":"` + h + `","file_size":10,"chunk_size":16,"chunk_count":1,"list":{"1":["` + c + `","abc"]}}`
	m, err = Decode(strings.NewReader(zipped))
	tassert(t, err == nil, "%v", err)
	tassert(t, m.Mode == ModeZip, "mode %q", m.Mode)
	name, ok = m.Artifact(1)
	tassert(t, ok && name == "abc.zip", "artifact %q %v", name, ok)

	_, ok = m.Artifact(2)
	tassert(t, !ok, "artifact for missing index")
}

func TestValidate(t *testing.T) {
	cases := map[string]func(m *Manifest){
		"missing index": func(m *Manifest) { delete(m.List, 2); m.List[5] = m.List[1] },
		"extra entry":   func(m *Manifest) { m.List[5] = m.List[1] },
		"count vs size": func(m *Manifest) { m.FileSize = 100 },
		"zero chunk":    func(m *Manifest) { m.ChunkSize = 0 },
		"path in name":  func(m *Manifest) { m.FileName = "../etc/passwd" },
		"empty name":    func(m *Manifest) { m.FileName = "" },
		"bad digest":    func(m *Manifest) { m.List[3] = Entry{Hash: "xyz"} },
		"bad file hash": func(m *Manifest) { m.FileHash = strings.ToUpper(m.FileHash) + "!" },
		"unknown algo":  func(m *Manifest) { m.Algo = "md5" },
		"unknown mode":  func(m *Manifest) { m.Mode = "gzip" },
		"name in plain": func(m *Manifest) { e := m.List[1]; e.Name = "x"; m.List[1] = e },
	}
	for name, mutate := range cases {
		m := mkmanifest(t, ModeNone, 4)
		mutate(m)
		err := m.Validate()
		tassert(t, errors.Is(err, ErrMalformed), "%s: expected ErrMalformed, got %v", name, err)
	}

	m := mkmanifest(t, ModeZip, 4)
	m.List[2] = Entry{Hash: m.List[2].Hash}
	err := m.Validate()
	tassert(t, errors.Is(err, ErrMalformed), "bare digest in zip manifest: got %v", err)

	m = mkmanifest(t, ModeZip, 4)
	m.List[2] = Entry{Hash: m.List[2].Hash, Name: "sub/dir"}
	err = m.Validate()
	tassert(t, errors.Is(err, ErrMalformed), "path in artifact name: got %v", err)
}

func TestDecodeGarbage(t *testing.T) {
	for _, txt := range []string{
		``,
		`not json`,
		`{"file_name": 7}`,
		`{"list": {"one": "x"}}`,
		`{"list": {"1": ["a", "b", "c"]}}`,
	} {
		_, err := Decode(strings.NewReader(txt))
		tassert(t, errors.Is(err, ErrMalformed), "%q: expected ErrMalformed, got %v", txt, err)
	}
}

func TestDecodeTrailing(t *testing.T) {
	m := mkmanifest(t, ModeNone, 2)
	buf, err := m.Marshal()
	tassert(t, err == nil, "%v", err)

	_, err = Decode(bytes.NewReader(append(buf, "\n\t \n"...)))
	tassert(t, err == nil, "trailing space rejected: %v", err)
	for _, tail := range []string{"garbage", "}", "{}", `"x"`} {
		_, err = Decode(bytes.NewReader(append(append([]byte{}, buf...), tail...)))
		tassert(t, errors.Is(err, ErrMalformed), "%q: expected ErrMalformed, got %v", tail, err)
	}
}

func TestLoad(t *testing.T) {
	m := mkmanifest(t, ModeZip, 3)
	buf, err := m.Marshal()
	tassert(t, err == nil, "%v", err)
	fn := filepath.Join(t.TempDir(), InfoName)
	err = os.WriteFile(fn, buf, 0644)
	tassert(t, err == nil, "%v", err)
	got, err := Load(fn)
	tassert(t, err == nil, "%v", err)
	tassert(t, pretty(m) == pretty(got), "expected %s got %s", pretty(m), pretty(got))

	_, err = Load(filepath.Join(t.TempDir(), "missing.json"))
	tassert(t, os.IsNotExist(err), "expected not-exist, got %v", err)
}

func pretty(m *Manifest) string {
	buf, err := m.Marshal()
	if err != nil {
		return err.Error()
	}
	return string(buf)
}

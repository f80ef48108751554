// Package bundle implements the `.exki` bytecode container and the
// standalone-executable trailer format (§4.16).
package bundle

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"

	"kinetix/internal/bytecode"
)

// magic is the four-byte signature every .exki file starts with.
var magic = [4]byte{'K', 'N', 'T', 'X'}

// format names the manifest's "format" field, carried for forward
// compatibility even though this baseline only ever produces one format.
const format = "kivm-bytecode-v1"

// manifest is informational only; decoding a bundle never strictly needs
// it to run, matching the original implementation's own comment to that
// effect.
type manifest struct {
	Version   int    `json:"version"`
	Functions int    `json:"functions"`
	Format    string `json:"format"`
	BuildID   string `json:"build_id"`
}

// Write serializes prog to the .exki binary format: magic, a JSON
// manifest length-prefixed with a u32 LE, then the program itself
// JSON-encoded and length-prefixed the same way.
func Write(w io.Writer, prog *bytecode.CompiledProgram) error {
	if _, err := w.Write(magic[:]); err != nil {
		return err
	}

	man := manifest{Version: prog.Version, Functions: len(prog.Functions), Format: format, BuildID: uuid.New().String()}
	manBytes, err := json.Marshal(man)
	if err != nil {
		return err
	}
	if err := writeLenPrefixed(w, manBytes); err != nil {
		return err
	}

	progBytes, err := json.Marshal(prog)
	if err != nil {
		return err
	}
	return writeLenPrefixed(w, progBytes)
}

func writeLenPrefixed(w io.Writer, b []byte) error {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(b)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

// Read deserializes a .exki payload, validating the magic number first.
func Read(r io.Reader) (*bytecode.CompiledProgram, error) {
	var gotMagic [4]byte
	if _, err := io.ReadFull(r, gotMagic[:]); err != nil {
		return nil, fmt.Errorf("reading bundle magic: %w", err)
	}
	if gotMagic != magic {
		return nil, fmt.Errorf("invalid magic number: expected %q, got %q", magic, gotMagic)
	}

	if _, err := readLenPrefixed(r); err != nil {
		return nil, fmt.Errorf("reading bundle manifest: %w", err)
	}

	progBytes, err := readLenPrefixed(r)
	if err != nil {
		return nil, fmt.Errorf("reading bundle payload: %w", err)
	}

	var prog bytecode.CompiledProgram
	if err := json.Unmarshal(progBytes, &prog); err != nil {
		return nil, fmt.Errorf("decoding bundle payload: %w", err)
	}
	return &prog, nil
}

func readLenPrefixed(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.LittleEndian.Uint32(lenBuf[:])
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// trailerSignature is appended, verbatim, after a standalone executable's
// embedded bytecode payload so the VM can recognize itself at startup.
const trailerSignature = "KINETIX_BUNDLE_V1"

// trailerLen is the fixed byte count of the size-plus-signature trailer a
// standalone executable seeks back from EOF to find: 8 bytes for the u64 LE
// payload size, plus len(trailerSignature).
const trailerLen = 8 + len(trailerSignature)

// WriteExecutable appends prog's .exki payload to the bytes already
// written to w (expected to be a copy of the running VM's own executable),
// followed by the `[u64 LE size | signature]` trailer a self-contained
// binary is detected by.
func WriteExecutable(w io.Writer, prog *bytecode.CompiledProgram) error {
	var payload bytes.Buffer
	if err := Write(&payload, prog); err != nil {
		return err
	}
	if _, err := w.Write(payload.Bytes()); err != nil {
		return err
	}
	var sizeBuf [8]byte
	binary.LittleEndian.PutUint64(sizeBuf[:], uint64(payload.Len()))
	if _, err := w.Write(sizeBuf[:]); err != nil {
		return err
	}
	_, err := io.WriteString(w, trailerSignature)
	return err
}

// DetectEmbedded checks whether the executable at path carries an embedded
// bundle trailer, per §4.16's "VM on startup seeks to EOF-25" contract.
// It returns (nil, false, nil) when no trailer signature is present, so a
// plain CLI invocation isn't treated as an error.
func DetectEmbedded(path string) (*bytecode.CompiledProgram, bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, false, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, false, err
	}
	if info.Size() < int64(trailerLen) {
		return nil, false, nil
	}

	if _, err := f.Seek(-int64(trailerLen), io.SeekEnd); err != nil {
		return nil, false, err
	}
	trailer := make([]byte, trailerLen)
	if _, err := io.ReadFull(f, trailer); err != nil {
		return nil, false, err
	}
	if string(trailer[8:]) != trailerSignature {
		return nil, false, nil
	}
	size := binary.LittleEndian.Uint64(trailer[:8])

	payloadStart := info.Size() - int64(trailerLen) - int64(size)
	if payloadStart < 0 {
		return nil, false, fmt.Errorf("bundle trailer reports a payload size larger than the file")
	}
	if _, err := f.Seek(payloadStart, io.SeekStart); err != nil {
		return nil, false, err
	}
	prog, err := Read(io.LimitReader(f, int64(size)))
	if err != nil {
		return nil, false, err
	}
	return prog, true, nil
}

package tiff

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"sort"
	"sync/atomic"
)

// IFD is one directory of a tiled pyramid file. ImageWidth, ImageLength and
// Photometric are always written; the other fields are omitted from the
// directory when zero-valued (SubfileType is written whenever nonzero).
type IFD struct {
	SubfileType     uint32
	ImageWidth      uint64
	ImageLength     uint64
	BitsPerSample   []uint16
	Compression     uint16
	Photometric     uint16
	DocumentName    string
	SamplesPerPixel uint16
	Software        string
	Predictor       uint16
	TileWidth       uint16
	TileLength      uint16
	TileOffsets     []uint64
	TileByteCounts  []uint64
	SampleFormat    []uint16
	JPEGTables      []byte
}

// Writer appends JPEG/Deflate tile blobs and directories to a classic or
// BigTIFF file. Directories are linked as they are written: the first one is
// patched into the header, each later one into the previous directory's next
// pointer. Tiles for a directory are written before the directory itself, so
// a crash mid-rip leaves no dangling first-IFD offset.
type Writer struct {
	f          *os.File
	enc        binary.ByteOrder
	bigtiff    bool
	off        int64 // append position
	nextIFDPos int64 // file position holding the next-IFD pointer to patch
	written    atomic.Int64
}

// Create opens path for writing and emits the file header with a zero
// first-IFD offset.
func Create(path string, bigtiff bool) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	w := &Writer{f: f, enc: binary.LittleEndian, bigtiff: bigtiff}
	var hdr []byte
	if bigtiff {
		hdr = make([]byte, 16)
		copy(hdr, "II")
		w.enc.PutUint16(hdr[2:], 43)
		w.enc.PutUint16(hdr[4:], 8) // offset size
		w.enc.PutUint16(hdr[6:], 0)
		w.enc.PutUint64(hdr[8:], 0) // first IFD: patched later
		w.nextIFDPos = 8
	} else {
		hdr = make([]byte, 8)
		copy(hdr, "II")
		w.enc.PutUint16(hdr[2:], 42)
		w.enc.PutUint32(hdr[4:], 0) // first IFD: patched later
		w.nextIFDPos = 4
	}
	if err := w.append(hdr); err != nil {
		f.Close()
		os.Remove(path)
		return nil, err
	}
	return w, nil
}

// BigTIFF reports the container flavor chosen at creation.
func (w *Writer) BigTIFF() bool { return w.bigtiff }

// Written is the total byte count appended so far.
func (w *Writer) Written() int64 { return w.written.Load() }

// AppendTile writes one encoded tile blob at the current end of file and
// returns its offset. Blobs start on even offsets.
func (w *Writer) AppendTile(data []byte) (uint64, error) {
	if err := w.align(); err != nil {
		return 0, err
	}
	off := uint64(w.off)
	if err := w.append(data); err != nil {
		return 0, err
	}
	return off, nil
}

// WriteIFD lays down the directory for tiles already appended, links it into
// the IFD chain and syncs the file.
func (w *Writer) WriteIFD(ifd *IFD) (uint64, error) {
	if err := w.align(); err != nil {
		return 0, err
	}
	ifdOff := uint64(w.off)

	entries := w.buildEntries(ifd)
	sort.Slice(entries, func(i, j int) bool { return entries[i].tag < entries[j].tag })

	hdrSize, entrySize, ptrSize := 2, 12, 4
	if w.bigtiff {
		hdrSize, entrySize, ptrSize = 8, 20, 8
	}
	overflowStart := ifdOff + uint64(hdrSize+len(entries)*entrySize+ptrSize)

	var block, overflow bytes.Buffer
	if w.bigtiff {
		binary.Write(&block, w.enc, uint64(len(entries)))
	} else {
		binary.Write(&block, w.enc, uint16(len(entries)))
	}
	for _, e := range entries {
		w.putEntry(&block, &overflow, overflowStart, e)
	}
	// next-IFD pointer, zero until a later directory patches it
	nextPtrPos := ifdOff + uint64(hdrSize+len(entries)*entrySize)
	if w.bigtiff {
		binary.Write(&block, w.enc, uint64(0))
	} else {
		binary.Write(&block, w.enc, uint32(0))
	}
	block.Write(overflow.Bytes())

	if err := w.append(block.Bytes()); err != nil {
		return 0, err
	}
	if err := w.patch(w.nextIFDPos, ifdOff); err != nil {
		return 0, err
	}
	w.nextIFDPos = int64(nextPtrPos)
	return ifdOff, w.f.Sync()
}

func (w *Writer) Close() error {
	if err := w.f.Sync(); err != nil {
		w.f.Close()
		return err
	}
	return w.f.Close()
}

func (w *Writer) append(p []byte) error {
	n, err := w.f.WriteAt(p, w.off)
	w.off += int64(n)
	w.written.Add(int64(n))
	if err != nil {
		return fmt.Errorf("tiff: append at %d: %w", w.off, err)
	}
	return nil
}

func (w *Writer) align() error {
	if w.off%2 == 1 {
		return w.append([]byte{0})
	}
	return nil
}

// patch overwrites a previously written next-IFD pointer.
func (w *Writer) patch(pos int64, ifdOff uint64) error {
	var buf []byte
	if w.bigtiff {
		buf = make([]byte, 8)
		w.enc.PutUint64(buf, ifdOff)
	} else {
		buf = make([]byte, 4)
		w.enc.PutUint32(buf, uint32(ifdOff))
	}
	if _, err := w.f.WriteAt(buf, pos); err != nil {
		return fmt.Errorf("tiff: patch ifd link at %d: %w", pos, err)
	}
	return nil
}

// entry is one directory field with its values already rendered to wire
// bytes.
type entry struct {
	tag   uint16
	typ   uint16
	count uint64
	data  []byte
}

// buildEntries renders the populated IFD fields. Offsets, byte counts and
// image dimensions take 8-byte types iff the container is BigTIFF.
func (w *Writer) buildEntries(ifd *IFD) []entry {
	var es []entry
	add := func(tag, typ int, count uint64, data []byte) {
		es = append(es, entry{tag: uint16(tag), typ: uint16(typ), count: count, data: data})
	}
	addShort := func(tag int, v uint16) {
		b := make([]byte, 2)
		w.enc.PutUint16(b, v)
		add(tag, typeShort, 1, b)
	}
	addShorts := func(tag int, vs []uint16) {
		b := make([]byte, 2*len(vs))
		for i, v := range vs {
			w.enc.PutUint16(b[i*2:], v)
		}
		add(tag, typeShort, uint64(len(vs)), b)
	}
	addSized := func(tag int, vs []uint64) {
		if w.bigtiff {
			b := make([]byte, 8*len(vs))
			for i, v := range vs {
				w.enc.PutUint64(b[i*8:], v)
			}
			add(tag, typeLong8, uint64(len(vs)), b)
			return
		}
		b := make([]byte, 4*len(vs))
		for i, v := range vs {
			w.enc.PutUint32(b[i*4:], uint32(v))
		}
		add(tag, typeLong, uint64(len(vs)), b)
	}
	addASCII := func(tag int, s string) {
		add(tag, typeASCII, uint64(len(s)+1), append([]byte(s), 0))
	}

	if ifd.SubfileType > 0 {
		b := make([]byte, 4)
		w.enc.PutUint32(b, ifd.SubfileType)
		add(TagNewSubfileType, typeLong, 1, b)
	}
	addSized(TagImageWidth, []uint64{ifd.ImageWidth})
	addSized(TagImageLength, []uint64{ifd.ImageLength})
	if len(ifd.BitsPerSample) > 0 {
		addShorts(TagBitsPerSample, ifd.BitsPerSample)
	}
	if ifd.Compression > 0 {
		addShort(TagCompression, ifd.Compression)
	}
	addShort(TagPhotometricInterpretation, ifd.Photometric)
	if ifd.DocumentName != "" {
		addASCII(TagDocumentName, ifd.DocumentName)
	}
	if ifd.SamplesPerPixel > 0 {
		addShort(TagSamplesPerPixel, ifd.SamplesPerPixel)
	}
	if ifd.Software != "" {
		addASCII(TagSoftware, ifd.Software)
	}
	if ifd.Predictor > 0 {
		addShort(TagPredictor, ifd.Predictor)
	}
	if ifd.TileWidth > 0 {
		addShort(TagTileWidth, ifd.TileWidth)
	}
	if ifd.TileLength > 0 {
		addShort(TagTileLength, ifd.TileLength)
	}
	if len(ifd.TileOffsets) > 0 {
		addSized(TagTileOffsets, ifd.TileOffsets)
	}
	if len(ifd.TileByteCounts) > 0 {
		addSized(TagTileByteCounts, ifd.TileByteCounts)
	}
	if len(ifd.SampleFormat) > 0 {
		addShorts(TagSampleFormat, ifd.SampleFormat)
	}
	if len(ifd.JPEGTables) > 0 {
		add(TagJPEGTables, typeUndefined, uint64(len(ifd.JPEGTables)), ifd.JPEGTables)
	}
	return es
}

// putEntry writes one directory entry, spilling values that do not fit
// inline into the overflow area that follows the directory block.
func (w *Writer) putEntry(block, overflow *bytes.Buffer, overflowStart uint64, e entry) {
	inline := 4
	if w.bigtiff {
		inline = 8
	}
	binary.Write(block, w.enc, e.tag)
	binary.Write(block, w.enc, e.typ)
	if w.bigtiff {
		binary.Write(block, w.enc, e.count)
	} else {
		binary.Write(block, w.enc, uint32(e.count))
	}
	if len(e.data) <= inline {
		block.Write(e.data)
		block.Write(make([]byte, inline-len(e.data)))
		return
	}
	off := overflowStart + uint64(overflow.Len())
	if off%2 == 1 {
		overflow.WriteByte(0)
		off++
	}
	overflow.Write(e.data)
	if w.bigtiff {
		binary.Write(block, w.enc, off)
	} else {
		binary.Write(block, w.enc, uint32(off))
	}
}

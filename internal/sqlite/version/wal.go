package version

import (
	"fmt"
	"io"

	"github.com/forensics-go/sqlforensic/internal/sqlite/fileformat"
	"github.com/forensics-go/sqlforensic/internal/sqlite/sqliteerr"
)

// WalFrame is one decoded WAL frame: its 24-byte header plus the page
// image that followed it.
type WalFrame struct {
	Header *fileformat.WalFrameHeader
	Data   []byte
	Index  int // 1-based position within the WAL file
}

// WalCommit is a run of frames ending at a frame whose DBSizeAfterCommit
// is nonzero: one committed transaction's worth of page writes, per
// spec.md §4.5's definition of a commit-frame subsequence.
type WalCommit struct {
	Frames            []*WalFrame
	byPage            map[uint32]*WalFrame // most-recently-written frame per page, within this commit only
	DBSizeAfterCommit uint32
	Salt1, Salt2      uint32
	CommitFrameIndex  int
}

// Wal is a fully parsed WAL file: its header and the ordered sequence of
// commits it contains.
type Wal struct {
	Header *fileformat.WalHeader

	Commits []*WalCommit

	// TrailingFrames holds a non-committing run of frames at EOF. Per the
	// open-question decision recorded in DESIGN.md, ReadWal reports them
	// with a "trailing_frames" warning and never synthesizes them into a
	// Version.
	TrailingFrames []*WalFrame
}

// ReadWal parses a WAL file's header and frame sequence, grouping frames
// into commit-frame subsequences.
func ReadWal(reader io.ReaderAt, fileLength int64, strict bool) (*Wal, []fileformat.Warning, error) {
	headerData := make([]byte, fileformat.WalHeaderSize)
	if _, err := reader.ReadAt(headerData, 0); err != nil && err != io.EOF {
		return nil, nil, sqliteerr.NewParsingError(sqliteerr.ErrWalParsing, "header", 0, err)
	}
	h, warnings, err := fileformat.ParseWalHeader(headerData, strict)
	if err != nil {
		return nil, warnings, err
	}

	w := &Wal{Header: h}
	frameSize := fileformat.WalFrameHeaderSize + int(h.PageSize)
	if h.PageSize == 0 {
		return w, warnings, nil
	}

	var pending []*WalFrame
	byPage := map[uint32]*WalFrame{}

	offset := int64(fileformat.WalHeaderSize)
	index := 0
	for offset+int64(frameSize) <= fileLength {
		buf := make([]byte, frameSize)
		if _, err := reader.ReadAt(buf, offset); err != nil && err != io.EOF {
			return w, warnings, sqliteerr.NewParsingError(sqliteerr.ErrWalFrameParsing, "frame", offset, err)
		}
		fh, err := fileformat.ParseWalFrameHeader(buf[:fileformat.WalFrameHeaderSize])
		if err != nil {
			return w, warnings, err
		}

		index++
		frame := &WalFrame{Header: fh, Data: buf[fileformat.WalFrameHeaderSize:], Index: index}
		pending = append(pending, frame)
		byPage[fh.PageNumber] = frame

		if fh.IsCommitFrame() {
			commitByPage := make(map[uint32]*WalFrame, len(byPage))
			for pn, f := range byPage {
				commitByPage[pn] = f
			}
			w.Commits = append(w.Commits, &WalCommit{
				Frames:            pending,
				byPage:            commitByPage,
				DBSizeAfterCommit: fh.DBSizeAfterCommit,
				Salt1:             fh.Salt1,
				Salt2:             fh.Salt2,
				CommitFrameIndex:  index,
			})
			pending = nil
			byPage = map[uint32]*WalFrame{}
		}

		offset += int64(frameSize)
	}
	w.TrailingFrames = pending
	if len(pending) > 0 {
		warnings = append(warnings, fileformat.Warning{
			Field:  "trailing_frames",
			Offset: offset - int64(len(pending)*frameSize),
			Err:    fmt.Errorf("%d non-committing frame(s) at end of wal", len(pending)),
		})
	}
	return w, warnings, nil
}

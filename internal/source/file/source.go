// Package file reads link frames from SocketCAN pcap captures.
package file

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"firestige.xyz/buscap/internal/core"
	"firestige.xyz/buscap/internal/metrics"
)

// LinkTypeSocketCAN is the pcap link type for Linux SocketCAN captures.
const LinkTypeSocketCAN = layers.LinkType(227)

// SocketCAN record layout: 4 bytes big-endian id plus flags, 1 byte
// payload length, 1 byte FD flags, 2 bytes padding, then the payload.
const (
	socketCANHeaderLen = 8
	fdfFlag            = 0x04 // CAN FD frame marker in the FD flags byte
)

type Options struct {
	Path string `mapstructure:"path"`
}

// FileSource reads frames from a pcap capture file.
type FileSource struct {
	path   string
	file   *os.File
	reader *pcapgo.Reader
	num    uint32
}

func NewSource(opts Options) (*FileSource, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("capture path is required")
	}
	return &FileSource{path: opts.Path}, nil
}

func (fs *FileSource) Start(ctx context.Context) error {
	f, err := os.Open(fs.path)
	if err != nil {
		return fmt.Errorf("failed to open capture %s: %w", fs.path, err)
	}
	r, err := pcapgo.NewReader(f)
	if err != nil {
		f.Close()
		return fmt.Errorf("failed to read capture %s: %w", fs.path, err)
	}
	if r.LinkType() != LinkTypeSocketCAN {
		f.Close()
		return fmt.Errorf("%w: capture link type %d, want %d (SocketCAN)",
			core.ErrBadLinkType, r.LinkType(), LinkTypeSocketCAN)
	}
	fs.file = f
	fs.reader = r
	return nil
}

// ReadFrame returns the next analyzable frame. Error and remote
// request records are counted and skipped; io.EOF ends the capture.
func (fs *FileSource) ReadFrame() (*core.LinkFrame, error) {
	if fs.reader == nil {
		return nil, fmt.Errorf("file source not started")
	}
	for {
		data, _, err := fs.reader.ReadPacketData()
		if err != nil {
			if err == io.EOF {
				return nil, io.EOF
			}
			return nil, fmt.Errorf("failed to read capture record: %w", err)
		}
		fs.num++

		frame, reason := decodeSocketCAN(fs.num, data)
		if frame == nil {
			metrics.CaptureFramesSkippedTotal.WithLabelValues(reason).Inc()
			continue
		}
		return frame, nil
	}
}

// decodeSocketCAN turns one SocketCAN capture record into a link
// frame, or reports why the record carries nothing to analyze.
func decodeSocketCAN(num uint32, data []byte) (*core.LinkFrame, string) {
	if len(data) < socketCANHeaderLen {
		return nil, "short_record"
	}
	raw := binary.BigEndian.Uint32(data[0:4])
	if raw&core.CANFlagError != 0 {
		return nil, "error_frame"
	}
	if raw&core.CANFlagRTR != 0 {
		return nil, "remote_request"
	}

	id := raw & core.CANMaskStandard
	if raw&core.CANFlagExtended != 0 {
		id = raw&core.CANMaskExtended | core.CANFlagExtended
	}

	payloadLen := int(data[4])
	if socketCANHeaderLen+payloadLen > len(data) {
		return nil, "short_record"
	}
	payload := data[socketCANHeaderLen : socketCANHeaderLen+payloadLen]

	kind := core.LinkCAN
	if data[5]&fdfFlag != 0 {
		kind = core.LinkCANFD
	}

	return &core.LinkFrame{
		Num:    num,
		Kind:   kind,
		LinkID: id,
		Data:   payload,
		Length: uint32(payloadLen),
	}, ""
}

func (fs *FileSource) Stop() error {
	if fs.file != nil {
		err := fs.file.Close()
		fs.file = nil
		fs.reader = nil
		return err
	}
	return nil
}

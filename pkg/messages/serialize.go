package messages

import (
	"encoding/json"
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// Encoder and decoder are safe for concurrent use through EncodeAll/DecodeAll.
var (
	encoder *zstd.Encoder
	decoder *zstd.Decoder
)

func init() {
	var err error
	encoder, decoder, err = newCodec()
	if err != nil {
		panic(fmt.Sprintf("failed to create zstd codec: %v", err))
	}
}

func newCodec() (*zstd.Encoder, *zstd.Decoder, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create encoder: %v", err)
	}
	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(0), zstd.WithDecoderMaxMemory(MessageBufferSize*8))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create decoder: %v", err)
	}
	return enc, dec, nil
}

func SerializeMessage(m *Message) ([]byte, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize message: %v", err)
	}
	return encoder.EncodeAll(b, make([]byte, 0, len(b))), nil
}

func DeserializeMessage(data []byte) (*Message, error) {
	if len(data) > MessageBufferSize {
		return nil, fmt.Errorf("message of %d bytes exceeds limit of %d", len(data), MessageBufferSize)
	}
	b, err := decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress message: %v", err)
	}

	message := &Message{}
	if err := json.Unmarshal(b, message); err != nil {
		return nil, fmt.Errorf("failed to deserialize message: %v", err)
	}
	if message.Type == "" {
		return nil, fmt.Errorf("message has no type")
	}
	return message, nil
}

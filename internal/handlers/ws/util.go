package ws

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"io"

	"github.com/gofiber/websocket/v2"
)

// maxInflated bounds decompressed inbound frames.
const maxInflated = 1 << 20

type frame struct {
	messageType int
	data        []byte
}

func encodeFrame(data []byte, gzipOK bool) frame {
	if gzipOK && len(data) > gzipThreshold {
		compressed, err := compressData(data)
		if err == nil && len(compressed) < len(data) {
			return frame{messageType: websocket.BinaryMessage, data: compressed}
		}
	}
	return frame{messageType: websocket.TextMessage, data: data}
}

func Serialize(msg Message) ([]byte, error) {
	payload, err := ToJson(msg)
	if err != nil {
		return nil, err
	}
	return json.Marshal(SerializedMessage{Type: msg.GetType(), Payload: payload})
}

func Deserialize(jsonBytes []byte) (Message, error) {
	var wrapper SerializedMessage
	if err := json.Unmarshal(jsonBytes, &wrapper); err != nil {
		return nil, err
	}

	return DeserializeSerializedMessage(&wrapper)
}

func DeserializeSerializedMessage(wrapper *SerializedMessage) (Message, error) {
	msg, err := CreateMessage(wrapper.Type, typeRegistry)
	if err != nil {
		return nil, err
	}

	// Keepalive frames usually arrive without a payload.
	if len(wrapper.Payload) == 0 || bytes.Equal(wrapper.Payload, []byte("null")) {
		return msg, nil
	}
	if err := FromJson(wrapper.Payload, msg); err != nil {
		return nil, err
	}

	return msg, nil
}

func compressData(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	gzipWriter := gzip.NewWriter(&buf)

	if _, err := gzipWriter.Write(data); err != nil {
		return nil, err
	}

	if err := gzipWriter.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// DecompressMessage inflates a gzip binary frame sent by a client.
func DecompressMessage(data []byte) ([]byte, error) {
	reader, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	out, err := io.ReadAll(io.LimitReader(reader, maxInflated+1))
	if err != nil {
		return nil, err
	}
	if len(out) > maxInflated {
		return nil, ErrFrameTooLarge
	}
	return out, nil
}

package decoder

import (
	"bytes"
	"errors"

	"assetload/pkg/common"

	"github.com/jfreymuth/oggvorbis"
)

func decodeAudio(data []byte) (common.Value, error) {
	if len(data) == 0 {
		return common.Value{}, errors.New("empty audio")
	}
	samples, format, err := oggvorbis.ReadAll(bytes.NewReader(data))
	if err != nil {
		return common.Value{}, err
	}
	if format.Channels == 0 || format.SampleRate == 0 {
		return common.Value{}, errors.New("missing stream format")
	}
	return common.AudioValue(&common.AudioBuffer{
		SampleRate: format.SampleRate,
		Channels:   format.Channels,
		Samples:    samples,
	}), nil
}

package common

import "testing"

func TestValueRelease(t *testing.T) {
	cases := []struct {
		name string
		v    Value
	}{
		{"empty text", TextValue(&TextBlob{MediaType: "text/plain", Charset: "utf-8"})},
		{"text", TextValue(&TextBlob{Text: "hello", MediaType: "text/plain", Charset: "utf-8"})},
		{"empty image", ImageValue(&ImageBuffer{Format: "png", Pix: []byte{}})},
		{"image", ImageValue(&ImageBuffer{Width: 1, Height: 1, Format: "png", Pix: []byte{1, 2, 3, 4}})},
		{"silent audio", AudioValue(&AudioBuffer{SampleRate: 44100, Channels: 2})},
		{"audio", AudioValue(&AudioBuffer{SampleRate: 44100, Channels: 1, Samples: []float32{0.5}})},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if tc.v.Released() {
				t.Fatal("live value reported as released")
			}
			held := tc.v
			tc.v.Release()
			if !held.Released() {
				t.Error("copy did not observe the release")
			}
			if held.Size() != 0 {
				t.Errorf("size after release = %d", held.Size())
			}
		})
	}
}

func TestValueReleasedWithoutBuffer(t *testing.T) {
	for _, k := range []Kind{KindImage, KindAudio, KindText, KindModel} {
		if !(Value{Kind: k}).Released() {
			t.Errorf("%s value without a buffer should count as released", k)
		}
	}
}

package transport

import "testing"

func TestKindForExt(t *testing.T) {
	tests := []struct {
		ext  string
		want FileKind
	}{
		{".mp3", FileAudio},
		{".mp4", FileVideo},
		{".webm", FileVideo},
		{".txt", FileDocument},
		{"", FileDocument},
	}
	for _, tt := range tests {
		if got := KindForExt(tt.ext); got != tt.want {
			t.Errorf("KindForExt(%q) = %v, want %v", tt.ext, got, tt.want)
		}
	}
}

package blobstore

import "testing"

func TestThumbnailURL(t *testing.T) {
	tests := []struct {
		name   string
		url    string
		offset int
		want   string
	}{
		{
			name:   "webm",
			url:    "https://host/video/upload/v1/id.webm",
			offset: 2,
			want:   "https://host/video/upload/so_2,w_480,h_270,c_fill/v1/id.jpg",
		},
		{
			name:   "mp4 nested",
			url:    "https://res.cloudinary.com/demo/video/upload/v17/folder/clip.mp4",
			offset: 5,
			want:   "https://res.cloudinary.com/demo/video/upload/so_5,w_480,h_270,c_fill/v17/folder/clip.jpg",
		},
		{
			name:   "mov",
			url:    "https://host/video/upload/a.mov",
			offset: 0,
			want:   "https://host/video/upload/so_0,w_480,h_270,c_fill/a.jpg",
		},
		{
			name:   "avi upper case",
			url:    "https://host/video/upload/a.AVI",
			offset: 1,
			want:   "https://host/video/upload/so_1,w_480,h_270,c_fill/a.jpg",
		},
		{
			name:   "not a cdn url",
			url:    "https://bucket.s3.eu-west-1.amazonaws.com/videos/a.webm",
			offset: 3,
			want:   "https://bucket.s3.eu-west-1.amazonaws.com/videos/a.webm",
		},
		{
			name:   "unknown extension",
			url:    "https://host/video/upload/v1/id.mkv",
			offset: 3,
			want:   "https://host/video/upload/v1/id.mkv",
		},
		{
			name:   "empty",
			url:    "",
			offset: 1,
			want:   "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ThumbnailURL(tt.url, tt.offset, ThumbnailWidth, ThumbnailHeight)
			if got != tt.want {
				t.Errorf("ThumbnailURL() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtensionFor(t *testing.T) {
	tests := map[string]string{
		"video/webm;codecs=vp9,opus": ".webm",
		"video/webm":                 ".webm",
		"video/mp4":                  ".mp4",
		"image/jpeg":                 ".jpg",
		"application/octet-stream":   ".bin",
		"":                           ".bin",
	}
	for in, want := range tests {
		if got := ExtensionFor(in); got != want {
			t.Errorf("ExtensionFor(%q) = %q, want %q", in, got, want)
		}
	}
}

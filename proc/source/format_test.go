package source

import "testing"

func TestSelectBest(t *testing.T) {
	tests := []struct {
		name       string
		candidates []Format
		want       string
	}{
		{
			name:       "empty",
			candidates: nil,
			want:       "",
		},
		{
			name: "opus beats higher bitrate",
			candidates: []Format{
				{URL: "https://cdn/a.m4a", Ext: "m4a", ACodec: "mp4a.40.2", VCodec: "none", TBR: 160},
				{URL: "https://cdn/b.webm", Ext: "webm", ACodec: "opus", VCodec: "none", TBR: 130},
			},
			want: "https://cdn/b.webm",
		},
		{
			name: "audio only beats muxed opus",
			candidates: []Format{
				{URL: "https://cdn/v.webm", Ext: "webm", ACodec: "opus", VCodec: "vp9", TBR: 900},
				{URL: "https://cdn/a.m4a", Ext: "m4a", ACodec: "mp4a.40.2", VCodec: "none", TBR: 128},
			},
			want: "https://cdn/a.m4a",
		},
		{
			name: "highest score wins among equals",
			candidates: []Format{
				{URL: "https://cdn/1", Ext: "m4a", VCodec: "none", ABR: 48},
				{URL: "https://cdn/2", Ext: "m4a", VCodec: "none", ABR: 128},
				{URL: "https://cdn/3", Ext: "m4a", VCodec: "none", Bitrate: 64},
			},
			want: "https://cdn/2",
		},
		{
			name: "ties keep the first",
			candidates: []Format{
				{URL: "https://cdn/first", Ext: "webm", VCodec: "none", TBR: 100},
				{URL: "https://cdn/second", Ext: "webm", VCodec: "none", TBR: 100},
			},
			want: "https://cdn/first",
		},
		{
			name: "candidates without url are skipped",
			candidates: []Format{
				{Ext: "webm", ACodec: "opus", VCodec: "none", TBR: 300},
				{URL: "https://cdn/a.m4a", Ext: "m4a", VCodec: "none", TBR: 64},
			},
			want: "https://cdn/a.m4a",
		},
		{
			name: "note marks audio only",
			candidates: []Format{
				{URL: "https://cdn/18", Ext: "mp4", ACodec: "mp4a", VCodec: "avc1", TBR: 500},
				{URL: "https://cdn/140", Ext: "m4a", Note: "140 - audio only (medium)", TBR: 129},
			},
			want: "https://cdn/140",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SelectBest(tt.candidates)
			if tt.want == "" {
				if got != nil {
					t.Errorf("expected nil, got %+v", got)
				}
				return
			}
			if got == nil {
				t.Fatalf("expected %s, got nil", tt.want)
			}
			if got.URL != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got.URL)
			}
		})
	}
}

func TestSelectBestReturnsCopy(t *testing.T) {
	candidates := []Format{{URL: "https://cdn/a.webm", Ext: "webm", VCodec: "none"}}
	got := SelectBest(candidates)
	got.URL = "changed"
	if candidates[0].URL != "https://cdn/a.webm" {
		t.Errorf("expected candidates untouched, got %s", candidates[0].URL)
	}
}

func TestIsLowOverheadURL(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{"https://cdn.example.com/track.webm", true},
		{"https://cdn.example.com/track.OPUS?sig=abc", true},
		{"https://cdn.example.com/track.webm#t=10", true},
		{"https://cdn.example.com/track.m4a", false},
		{"https://rr1.googlevideo.com/videoplayback?mime=audio%2Fwebm", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			if got := IsLowOverheadURL(tt.url); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

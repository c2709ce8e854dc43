package crawler

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestDestinationPath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		url     string
		dir     string
		want    string
		wantErr error
	}{
		{name: "three segments", url: "https://host/a/b/c", dir: "img", want: filepath.Join("img", "b_c")},
		{
			name: "query ignored",
			url:  "https://mikanani.me/images/Bangumi/202010/c4b6f0c4.jpg?width=400",
			dir:  "img",
			want: filepath.Join("img", "202010_c4b6f0c4.jpg"),
		},
		{
			name: "torrent",
			url:  "https://mikanani.me/Download/20201014/abcdef.torrent",
			dir:  "torrent",
			want: filepath.Join("torrent", "20201014_abcdef.torrent"),
		},
		{name: "trailing slash", url: "https://host/a/b/", dir: "img", want: filepath.Join("img", "a_b")},
		{name: "single segment", url: "https://host/a", dir: "img", wantErr: ErrPathTooShort},
		{name: "no path", url: "https://host", dir: "img", wantErr: ErrPathTooShort},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := DestinationPath(tt.url, tt.dir)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("DestinationPath() error = %v", err)
			}
			if got != tt.want {
				t.Fatalf("DestinationPath() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestResolveURL(t *testing.T) {
	t.Parallel()

	got, err := ResolveURL("https://mikanani.me", "/images/Bangumi/202010/x.jpg")
	if err != nil {
		t.Fatalf("ResolveURL() error = %v", err)
	}
	if got != "https://mikanani.me/images/Bangumi/202010/x.jpg" {
		t.Fatalf("unexpected url %q", got)
	}

	page, err := ResourcePageURL("https://mikanani.me/", "2353")
	if err != nil {
		t.Fatalf("ResourcePageURL() error = %v", err)
	}
	if page != "https://mikanani.me/Home/Bangumi/2353" {
		t.Fatalf("unexpected resource page %q", page)
	}
}

func TestWeekdayString(t *testing.T) {
	t.Parallel()

	if Weekday(0).String() != "Sunday" || Weekday(6).String() != "Saturday" {
		t.Fatal("expected calendar weekday names")
	}
	if Weekday(8).String() != "group-8" {
		t.Fatalf("unexpected extra group name %q", Weekday(8).String())
	}
}

func TestStructuralErrorIs(t *testing.T) {
	t.Parallel()

	err := NewStructuralError("span[data-bangumiid]", "li #2")
	if !errors.Is(err, ErrStructure) {
		t.Fatal("expected structural error to match ErrStructure")
	}
	var se *StructuralError
	if !errors.As(err, &se) || se.Element != "span[data-bangumiid]" {
		t.Fatalf("expected StructuralError, got %v", err)
	}
}

func TestCatalogEntryHasResources(t *testing.T) {
	t.Parallel()

	if (CatalogEntry{LastUpdateLabel: NoResourcesLabel}).HasResources() {
		t.Fatal("placeholder entry should report no resources")
	}
	if !(CatalogEntry{LastUpdateLabel: "2020/10/14 更新"}).HasResources() {
		t.Fatal("dated entry should report resources")
	}
}

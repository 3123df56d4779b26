// Package musicbrainz fetches release metadata from a MusicBrainz-compatible
// web service and extracts track lists for catalog enrichment.
package musicbrainz

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"net/http"
	"time"
)

const (
	defaultTimeout = 10 * time.Second
	userAgent      = "recordstore/1.0"
)

var (
	// ErrReleaseNotFound indicates the service returned no release for the id.
	ErrReleaseNotFound = errors.New("release not found")
	// ErrUnavailable covers transport, timeout and parse failures.
	ErrUnavailable = errors.New("metadata service unavailable")
)

// Track is one track descriptor extracted from a release.
type Track struct {
	Position         string
	Title            string
	Duration         string
	FirstReleaseDate string
}

// Release holds the metadata extracted for one release.
type Release struct {
	Artist    string
	Album     string
	Tracklist []Track
}

// Client calls the metadata service over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a metadata client with a bounded request timeout.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}
}

// MusicBrainz XML response structures.
type mbMetadata struct {
	XMLName xml.Name   `xml:"metadata"`
	Release *mbRelease `xml:"release"`
}

type mbRelease struct {
	Title        string         `xml:"title"`
	ArtistCredit mbArtistCredit `xml:"artist-credit"`
	MediumList   mbMediumList   `xml:"medium-list"`
}

type mbArtistCredit struct {
	NameCredits []mbNameCredit `xml:"name-credit"`
}

type mbNameCredit struct {
	Artist mbArtist `xml:"artist"`
}

type mbArtist struct {
	Name string `xml:"name"`
}

type mbMediumList struct {
	Mediums []mbMedium `xml:"medium"`
}

type mbMedium struct {
	TrackList mbTrackList `xml:"track-list"`
}

type mbTrackList struct {
	Tracks []mbTrack `xml:"track"`
}

type mbTrack struct {
	Position  string      `xml:"position"`
	Recording mbRecording `xml:"recording"`
}

type mbRecording struct {
	Title            string `xml:"title"`
	Length           string `xml:"length"`
	FirstReleaseDate string `xml:"first-release-date"`
}

// FetchRelease requests release information for the given identifier and
// extracts artist, album and track list. Missing fields default per the
// catalog conventions; a medium with a single track still yields a
// one-element track list.
func (c *Client) FetchRelease(ctx context.Context, mbid string) (Release, error) {
	url := fmt.Sprintf("%s/release/%s?inc=recordings+artist-credits", c.baseURL, mbid)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Release{}, fmt.Errorf("%w: create request: %v", ErrUnavailable, err)
	}
	req.Header.Set("Accept", "application/xml")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Release{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return Release{}, ErrReleaseNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return Release{}, fmt.Errorf("%w: unexpected status %s", ErrUnavailable, resp.Status)
	}

	var meta mbMetadata
	if err := xml.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return Release{}, fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}
	if meta.Release == nil {
		return Release{}, ErrReleaseNotFound
	}

	return extractRelease(meta.Release), nil
}

func extractRelease(release *mbRelease) Release {
	artist := "Unknown Artist"
	if credits := release.ArtistCredit.NameCredits; len(credits) > 0 && credits[0].Artist.Name != "" {
		artist = credits[0].Artist.Name
	}

	album := release.Title
	if album == "" {
		album = "Unknown Album"
	}

	tracklist := []Track{}
	for _, medium := range release.MediumList.Mediums {
		for _, track := range medium.TrackList.Tracks {
			title := track.Recording.Title
			if title == "" {
				title = "Unknown Track"
			}
			tracklist = append(tracklist, Track{
				Position:         track.Position,
				Title:            title,
				Duration:         track.Recording.Length,
				FirstReleaseDate: track.Recording.FirstReleaseDate,
			})
		}
	}

	return Release{
		Artist:    artist,
		Album:     album,
		Tracklist: tracklist,
	}
}

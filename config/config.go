package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/grrywlsn/plexsync/match"
)

// DefaultConfigFile is read when no config file path is given. A missing
// default file is not an error.
const DefaultConfigFile = "plexsync.yaml"

// Playlist merge modes for an existing destination playlist with the same name
const (
	MergeUnion   = "union"
	MergeReplace = "replace"
	MergeSkip    = "skip"
)

// Config holds all configuration values
type Config struct {
	Spotify SpotifyConfig `yaml:"spotify"`
	Plex    PlexConfig    `yaml:"plex"`
	Match   MatchConfig   `yaml:"match"`
	Sync    SyncConfig    `yaml:"sync"`
	Logging LoggingConfig `yaml:"logging"`

	// parse errors collected while loading, reported by validate
	invalid []string
}

// SpotifyConfig holds Spotify API configuration
type SpotifyConfig struct {
	ClientID            string   `yaml:"client_id"`
	ClientSecret        string   `yaml:"client_secret"`
	Username            string   `yaml:"username"`           // Spotify username to get all public playlists
	PlaylistIDs         []string `yaml:"playlists"`          // playlist IDs or open.spotify.com URLs
	ExcludedPlaylistIDs []string `yaml:"excluded_playlists"` // Playlist IDs to exclude from processing
}

// PlexConfig holds Plex server configuration
type PlexConfig struct {
	URL              string `yaml:"url"`
	Token            string `yaml:"token"`
	LibrarySectionID int    `yaml:"library_section_id"`
	ServerID         string `yaml:"server_id"`
	SkipTLSVerify    bool   `yaml:"skip_tls_verify"`
}

// MatchConfig holds the scoring weights and acceptance threshold
type MatchConfig struct {
	TitleWeight  int       `yaml:"title_weight"`
	ArtistWeight int       `yaml:"artist_weight"`
	AlbumWeight  int       `yaml:"album_weight"`
	Threshold    int       `yaml:"threshold"`
	EditCosts    EditCosts `yaml:"edit_costs"`
}

// EditCosts are the per-operation costs of the edit distance
type EditCosts struct {
	Insert     int `yaml:"insert"`
	Delete     int `yaml:"delete"`
	Substitute int `yaml:"substitute"`
}

// SyncConfig controls how destination playlists are written
type SyncConfig struct {
	MergeMode string `yaml:"merge_mode"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// Weights returns the configured scorer weights
func (m MatchConfig) Weights() match.Weights {
	return match.Weights{
		Title:  m.TitleWeight,
		Artist: m.ArtistWeight,
		Album:  m.AlbumWeight,
	}
}

// Distance returns the edit distance for the configured costs
func (m MatchConfig) Distance() match.DistanceFunc {
	return match.WagnerFischer(m.EditCosts.Insert, m.EditCosts.Delete, m.EditCosts.Substitute)
}

// Load loads configuration in this order, later sources winning:
// 1. Defaults
// 2. YAML config file (path, or DefaultConfigFile when path is empty)
// 3. OS environment variables (only if they exist)
// 4. .env file, for keys the OS environment leaves unset
func Load(path string) (*Config, error) {
	return LoadWithOverrides(path, nil)
}

// LoadWithOverrides loads configuration and applies CLI flag overrides last
func LoadWithOverrides(path string, overrides map[string]string) (*Config, error) {
	config := &Config{}
	config.initializeDefaults()

	if err := config.loadFromFile(path); err != nil {
		return nil, err
	}

	config.loadFromOSEnv()
	config.loadFromEnvFile()
	config.applyOverrides(overrides)
	config.sanitizePlaylistIDs()

	if err := config.validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// initializeDefaults sets up the initial configuration with default values
func (c *Config) initializeDefaults() {
	c.Spotify = SpotifyConfig{}

	c.Plex = PlexConfig{}

	c.Match = MatchConfig{
		TitleWeight:  match.DefaultTitleWeight,
		ArtistWeight: match.DefaultArtistWeight,
		AlbumWeight:  match.DefaultAlbumWeight,
		Threshold:    match.DefaultThreshold,
		EditCosts:    EditCosts{Insert: 1, Delete: 1, Substitute: 1},
	}

	c.Sync = SyncConfig{MergeMode: MergeUnion}

	c.Logging = LoggingConfig{
		Level:  "info",
		Format: "text",
	}
}

// loadFromFile decodes a YAML file over the current values. Keys absent from
// the file keep their defaults.
func (c *Config) loadFromFile(path string) error {
	explicit := path != ""
	if !explicit {
		path = DefaultConfigFile
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return nil
}

// envKeys lists every variable read from the environment
var envKeys = []string{
	"SPOTIFY_CLIENT_ID",
	"SPOTIFY_CLIENT_SECRET",
	"SPOTIFY_USERNAME",
	"SPOTIFY_PLAYLIST_ID",
	"SPOTIFY_PLAYLIST_EXCLUDED_ID",
	"PLEX_URL",
	"PLEX_TOKEN",
	"PLEX_LIBRARY_SECTION_ID",
	"PLEX_SERVER_ID",
	"PLEX_SKIP_TLS_VERIFY",
	"MATCH_WEIGHT_TITLE",
	"MATCH_WEIGHT_ARTIST",
	"MATCH_WEIGHT_ALBUM",
	"MATCH_THRESHOLD",
	"MATCH_EDIT_COSTS",
	"PLAYLIST_MERGE_MODE",
	"LOG_LEVEL",
	"LOG_FORMAT",
	"LOG_FILE",
}

// loadFromOSEnv loads configuration from OS environment variables (only if they exist)
func (c *Config) loadFromOSEnv() {
	for _, key := range envKeys {
		if value := os.Getenv(key); value != "" {
			c.set(key, value)
		}
	}
}

// loadFromEnvFile loads configuration from .env file (only if it exists and values exist)
func (c *Config) loadFromEnvFile() {
	values, err := godotenv.Read()
	if err != nil {
		// .env file doesn't exist, skip this step
		return
	}

	// OS environment variables take precedence over the file
	for _, key := range envKeys {
		if value := values[key]; value != "" && os.Getenv(key) == "" {
			c.set(key, value)
		}
	}
}

// applyOverrides applies CLI flag overrides to the configuration (only if they exist)
func (c *Config) applyOverrides(overrides map[string]string) {
	for key, value := range overrides {
		if value == "" {
			continue
		}
		c.set(key, value)
	}
}

// set assigns one configuration key. Unparseable values are remembered and
// reported by validate.
func (c *Config) set(key, value string) {
	switch key {
	case "SPOTIFY_CLIENT_ID":
		c.Spotify.ClientID = value
	case "SPOTIFY_CLIENT_SECRET":
		c.Spotify.ClientSecret = value
	case "SPOTIFY_USERNAME":
		c.Spotify.Username = value
	case "SPOTIFY_PLAYLIST_ID":
		c.Spotify.PlaylistIDs = parseCommaSeparatedList(value)
	case "SPOTIFY_PLAYLIST_EXCLUDED_ID":
		c.Spotify.ExcludedPlaylistIDs = parseCommaSeparatedList(value)
	case "PLEX_URL":
		c.Plex.URL = strings.TrimSuffix(value, "/")
	case "PLEX_TOKEN":
		c.Plex.Token = value
	case "PLEX_LIBRARY_SECTION_ID":
		if sectionID, err := parseLibrarySectionID(value); err == nil {
			c.Plex.LibrarySectionID = sectionID
		} else {
			c.invalid = append(c.invalid, fmt.Sprintf("%s: %v", key, err))
		}
	case "PLEX_SERVER_ID":
		c.Plex.ServerID = value
	case "PLEX_SKIP_TLS_VERIFY":
		if skip, err := strconv.ParseBool(value); err == nil {
			c.Plex.SkipTLSVerify = skip
		} else {
			c.invalid = append(c.invalid, fmt.Sprintf("%s: invalid boolean '%s'", key, value))
		}
	case "MATCH_WEIGHT_TITLE":
		c.setInt(key, value, &c.Match.TitleWeight)
	case "MATCH_WEIGHT_ARTIST":
		c.setInt(key, value, &c.Match.ArtistWeight)
	case "MATCH_WEIGHT_ALBUM":
		c.setInt(key, value, &c.Match.AlbumWeight)
	case "MATCH_THRESHOLD":
		c.setInt(key, value, &c.Match.Threshold)
	case "MATCH_EDIT_COSTS":
		if costs, err := parseEditCosts(value); err == nil {
			c.Match.EditCosts = costs
		} else {
			c.invalid = append(c.invalid, fmt.Sprintf("%s: %v", key, err))
		}
	case "PLAYLIST_MERGE_MODE":
		c.Sync.MergeMode = strings.ToLower(value)
	case "LOG_LEVEL":
		c.Logging.Level = strings.ToLower(value)
	case "LOG_FORMAT":
		c.Logging.Format = strings.ToLower(value)
	case "LOG_FILE":
		c.Logging.File = value
	}
}

func (c *Config) setInt(key, value string, dst *int) {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		c.invalid = append(c.invalid, fmt.Sprintf("%s: invalid integer '%s'", key, value))
		return
	}
	*dst = n
}

// sanitizePlaylistIDs turns playlist URLs into bare IDs
func (c *Config) sanitizePlaylistIDs() {
	for i, id := range c.Spotify.PlaylistIDs {
		c.Spotify.PlaylistIDs[i] = ParsePlaylistID(id)
	}
	for i, id := range c.Spotify.ExcludedPlaylistIDs {
		c.Spotify.ExcludedPlaylistIDs[i] = ParsePlaylistID(id)
	}
}

// ParsePlaylistID extracts the playlist ID from a Spotify playlist URL or URI.
// Bare IDs are returned unchanged.
func ParsePlaylistID(s string) string {
	s = strings.TrimSpace(s)
	for _, prefix := range []string{
		"https://open.spotify.com/playlist/",
		"http://open.spotify.com/playlist/",
		"open.spotify.com/playlist/",
		"spotify:playlist:",
	} {
		if strings.HasPrefix(s, prefix) {
			s = strings.TrimPrefix(s, prefix)
			break
		}
	}
	if i := strings.IndexAny(s, "?#"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSuffix(s, "/")
}

// parseCommaSeparatedList parses a comma-separated string into a slice of trimmed strings
func parseCommaSeparatedList(input string) []string {
	if input == "" {
		return nil
	}

	var items []string
	for _, item := range strings.Split(input, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}

	return items
}

// parseLibrarySectionID parses the library section ID from string
func parseLibrarySectionID(value string) (int, error) {
	if value == "0" || value == "your_music_library_section_id" {
		return 0, nil
	}

	sectionID, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid section ID '%s': %w", value, err)
	}

	return sectionID, nil
}

// parseEditCosts parses "insert,delete,substitute"
func parseEditCosts(value string) (EditCosts, error) {
	parts := parseCommaSeparatedList(value)
	if len(parts) != 3 {
		return EditCosts{}, fmt.Errorf("expected insert,delete,substitute costs, got '%s'", value)
	}

	var costs [3]int
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return EditCosts{}, fmt.Errorf("invalid cost '%s': %w", p, err)
		}
		costs[i] = n
	}

	return EditCosts{Insert: costs[0], Delete: costs[1], Substitute: costs[2]}, nil
}

// validate checks that all required configuration values are present and
// that the optional ones hold usable values
func (c *Config) validate() error {
	var missingFields []string

	// Check Spotify configuration
	if c.Spotify.ClientID == "" {
		missingFields = append(missingFields, "SPOTIFY_CLIENT_ID")
	}
	if c.Spotify.ClientSecret == "" {
		missingFields = append(missingFields, "SPOTIFY_CLIENT_SECRET")
	}

	// Check Plex configuration
	if c.Plex.URL == "" {
		missingFields = append(missingFields, "PLEX_URL")
	}
	if c.Plex.Token == "" {
		missingFields = append(missingFields, "PLEX_TOKEN")
	}
	if c.Plex.LibrarySectionID == 0 {
		missingFields = append(missingFields, "PLEX_LIBRARY_SECTION_ID")
	}

	// Check playlist configuration
	if c.Spotify.Username == "" && len(c.Spotify.PlaylistIDs) == 0 {
		missingFields = append(missingFields, "SPOTIFY_USERNAME or SPOTIFY_PLAYLIST_ID")
	}

	invalidFields := append([]string(nil), c.invalid...)
	invalidFields = append(invalidFields, c.Match.problems()...)

	switch c.Sync.MergeMode {
	case MergeUnion, MergeReplace, MergeSkip:
	default:
		invalidFields = append(invalidFields, fmt.Sprintf("PLAYLIST_MERGE_MODE: unknown mode '%s' (use union, replace or skip)", c.Sync.MergeMode))
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		invalidFields = append(invalidFields, fmt.Sprintf("LOG_LEVEL: unknown level '%s'", c.Logging.Level))
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		invalidFields = append(invalidFields, fmt.Sprintf("LOG_FORMAT: unknown format '%s'", c.Logging.Format))
	}

	var msgs []string
	if len(missingFields) > 0 {
		msgs = append(msgs, fmt.Sprintf("missing required configuration values:\n%s", strings.Join(missingFields, "\n")))
	}
	if len(invalidFields) > 0 {
		msgs = append(msgs, fmt.Sprintf("invalid configuration values:\n%s", strings.Join(invalidFields, "\n")))
	}
	if len(msgs) > 0 {
		return fmt.Errorf("%s\n\nSet these values via environment variables, .env file, config file, or CLI flags", strings.Join(msgs, "\n\n"))
	}

	return nil
}

func (m MatchConfig) problems() []string {
	var problems []string

	if m.TitleWeight < 0 || m.ArtistWeight < 0 || m.AlbumWeight < 0 {
		problems = append(problems, "MATCH_WEIGHT_*: weights cannot be negative")
	} else if m.TitleWeight+m.ArtistWeight+m.AlbumWeight == 0 {
		problems = append(problems, "MATCH_WEIGHT_*: at least one weight must be positive")
	}

	if m.Threshold < 1 || m.Threshold > match.Sentinel {
		problems = append(problems, fmt.Sprintf("MATCH_THRESHOLD: must be between 1 and %d, got %d", match.Sentinel, m.Threshold))
	}

	if m.EditCosts.Insert < 1 || m.EditCosts.Delete < 1 || m.EditCosts.Substitute < 1 {
		problems = append(problems, "MATCH_EDIT_COSTS: costs must be at least 1")
	}

	return problems
}

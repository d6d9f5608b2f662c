package source

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/hbomb79/Reel/internal/media"
	"github.com/hbomb79/Reel/pkg/logger"
	"github.com/mitchellh/mapstructure"
)

var (
	log = logger.Get("Resolver")

	// ErrProviderUnavailable is returned when the provider binary cannot be
	// executed at all, which is a configuration fault rather than a bad URL.
	ErrProviderUnavailable = errors.New("stream provider could not be executed")

	providerNetworkMarkers = []string{
		"Unable to download webpage",
		"Unable to download API page",
		"timed out",
		"Temporary failure in name resolution",
		"Connection reset",
		"Connection refused",
		"HTTP Error 429",
		"HTTP Error 5",
	}
)

type (
	Config struct {
		YtdlpBinPath    string `yaml:"ytdlp_bin_path" env:"YTDLP_BIN_PATH" env-default:"yt-dlp"`
		TargetContainer string `yaml:"target_container" env:"TARGET_CONTAINER" env-default:"mp4"`
	}

	// CommandRunner executes an external binary and returns it's stdout.
	CommandRunner interface {
		Run(ctx context.Context, name string, args ...string) ([]byte, error)
	}

	execRunner struct{}

	// Resolver uses yt-dlp to discover the streams a remote media URL
	// offers. yt-dlp is only used for discovery; the bytes are fetched
	// separately.
	Resolver struct {
		config Config
		runner CommandRunner
	}

	ytdlpFormat struct {
		FormatID       string  `mapstructure:"format_id"`
		Ext            string  `mapstructure:"ext"`
		VideoCodec     string  `mapstructure:"vcodec"`
		AudioCodec     string  `mapstructure:"acodec"`
		Height         int     `mapstructure:"height"`
		AudioBitrate   float64 `mapstructure:"abr"`
		TotalBitrate   float64 `mapstructure:"tbr"`
		Filesize       int64   `mapstructure:"filesize"`
		FilesizeApprox int64   `mapstructure:"filesize_approx"`
		URL            string  `mapstructure:"url"`
		Protocol       string  `mapstructure:"protocol"`
	}

	ytdlpInfo struct {
		ID         string        `mapstructure:"id"`
		Title      string        `mapstructure:"title"`
		WebpageURL string        `mapstructure:"webpage_url"`
		Formats    []ytdlpFormat `mapstructure:"formats"`
	}
)

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s: %w (stderr: %s)", name, err, strings.TrimSpace(stderr.String()))
	}

	return stdout.Bytes(), nil
}

func NewResolver(config Config) *Resolver {
	return NewResolverWithRunner(config, execRunner{})
}

func NewResolverWithRunner(config Config, runner CommandRunner) *Resolver {
	if config.YtdlpBinPath == "" {
		config.YtdlpBinPath = "yt-dlp"
	}
	if config.TargetContainer == "" {
		config.TargetContainer = "mp4"
	}

	return &Resolver{config: config, runner: runner}
}

// TargetContainer is the container the video legs of a job are restricted to.
func (resolver *Resolver) TargetContainer() string { return resolver.config.TargetContainer }

// Resolve queries the provider for the streams available at the URL.
//
// A provider binary which cannot be executed yields ErrProviderUnavailable, and
// a provider which reports a network failure yields a transient
// FetchError{Network}. Any other failure to query or decode the provider
// response results in a ResolutionError{NotFound}.
func (resolver *Resolver) Resolve(ctx context.Context, url string) (*media.MediaSource, error) {
	log.Emit(logger.DEBUG, "Resolving streams for %s\n", url)
	out, err := resolver.runner.Run(ctx, resolver.config.YtdlpBinPath, "-J", "--no-warnings", "--no-playlist", url)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, media.NewCancelledError(url, ctxErr)
		}

		return nil, resolver.classifyRunError(url, err)
	}

	source, err := decodeSource(url, out)
	if err != nil {
		return nil, &media.ResolutionError{Kind: media.NotFound, URL: url, Err: err}
	}

	log.Emit(logger.DEBUG, "Resolved %d usable streams for %s ('%s')\n", len(source.Streams), url, source.Title)
	return source, nil
}

func (resolver *Resolver) classifyRunError(url string, err error) error {
	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist) || errors.Is(err, os.ErrPermission) {
		log.Emit(logger.ERROR, "Provider binary '%s' cannot be executed: %v\n", resolver.config.YtdlpBinPath, err)
		return fmt.Errorf("%w (%s): %w", ErrProviderUnavailable, resolver.config.YtdlpBinPath, err)
	}

	message := err.Error()
	for _, marker := range providerNetworkMarkers {
		if strings.Contains(message, marker) {
			return &media.FetchError{Kind: media.Network, SourceURL: url, Err: err}
		}
	}

	return &media.ResolutionError{Kind: media.NotFound, URL: url, Err: err}
}

func decodeSource(url string, raw []byte) (*media.MediaSource, error) {
	var generic map[string]any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("provider response is not valid JSON: %w", err)
	}

	var info ytdlpInfo
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &info,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(generic); err != nil {
		return nil, fmt.Errorf("provider response could not be decoded: %w", err)
	}

	if info.ID == "" && len(info.Formats) == 0 {
		return nil, errors.New("provider response describes no media")
	}

	source := &media.MediaSource{URL: url, Title: info.Title, Streams: make([]media.StreamDescriptor, 0, len(info.Formats))}
	for _, format := range info.Formats {
		if desc, ok := format.toDescriptor(info.Title); ok {
			source.Streams = append(source.Streams, desc)
		}
	}

	return source, nil
}

// toDescriptor converts a provider format to a StreamDescriptor. Formats which
// carry no audio or video (e.g. storyboards), or which are not
// directly downloadable over HTTP, are rejected.
func (format ytdlpFormat) toDescriptor(title string) (media.StreamDescriptor, bool) {
	if format.URL == "" || !isDirectProtocol(format.Protocol) {
		return media.StreamDescriptor{}, false
	}

	hasVideo := codecPresent(format.VideoCodec)
	hasAudio := codecPresent(format.AudioCodec)

	desc := media.StreamDescriptor{
		ID:         format.FormatID,
		Container:  format.Ext,
		Resolution: format.Height,
		Bitrate:    format.TotalBitrate,
		SizeBytes:  format.Filesize,
		URL:        format.URL,
		Title:      title,
	}
	if desc.SizeBytes == 0 {
		desc.SizeBytes = format.FilesizeApprox
	}

	switch {
	case hasVideo && hasAudio:
		desc.Kind = media.ProgressiveStream
		desc.Codec = format.VideoCodec
	case hasVideo:
		desc.Kind = media.VideoStream
		desc.Codec = format.VideoCodec
	case hasAudio:
		desc.Kind = media.AudioStream
		desc.Codec = format.AudioCodec
		desc.Resolution = 0
		if format.AudioBitrate > 0 {
			desc.Bitrate = format.AudioBitrate
		}
	default:
		return media.StreamDescriptor{}, false
	}

	return desc, true
}

func codecPresent(codec string) bool {
	return codec != "" && codec != "none"
}

func isDirectProtocol(protocol string) bool {
	switch protocol {
	case "", "http", "https":
		return true
	default:
		return false
	}
}

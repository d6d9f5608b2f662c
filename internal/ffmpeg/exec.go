package ffmpeg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/floostack/transcoder/ffmpeg"
	"github.com/hbomb79/Reel/internal/media"
	"github.com/hbomb79/Reel/pkg/logger"
)

var (
	log = logger.Get("FFmpeg")

	messageMatcher = regexp.MustCompile(`(?s)message: ({.*})`)

	corruptInputMarkers = []string{
		"Invalid data found",
		"moov atom not found",
		"EBML header parsing failed",
		"End of file",
	}
	unsupportedCodecMarkers = []string{
		"Unknown encoder",
		"Encoder not found",
		"Decoder not found",
		"not currently supported",
		"does not contain any stream",
		"Could not find tag for codec",
	}
)

// argList satisfies the transcoder.Options interface using
// a pre-built list of ffmpeg arguments.
type argList []string

func (args argList) GetStrArguments() []string { return args }

// transcodeCommand is a single invocation of ffmpeg reading from the
// inputs and writing to outputPath. The first input is passed to the
// transcoder directly, any others are given as additional '-i' arguments.
type transcodeCommand struct {
	inputPath  string
	args       []string
	outputPath string
	config     Config
}

func (cmd *transcodeCommand) String() string {
	return fmt.Sprintf("{ffmpeg in_path=%s | args=%v | out_path=%s}", cmd.inputPath, cmd.args, cmd.outputPath)
}

// Run starts ffmpeg and blocks until the command exits, the context is
// cancelled, or ffmpeg fails to start. If anything prevents a complete
// output file being produced, the output is removed and an error returned.
func (cmd *transcodeCommand) Run(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return media.NewCancelledError(cmd.inputPath, err)
	}

	transcoder := ffmpeg.
		New(&ffmpeg.Config{
			ProgressEnabled: true,
			FfmpegBinPath:   cmd.config.FfmpegBinPath,
			FfprobeBinPath:  cmd.config.FfprobeBinPath,
		}).
		Input(cmd.inputPath).
		Output(cmd.outputPath).
		WithContext(&ctx)

	log.Emit(logger.DEBUG, "Starting %s\n", cmd)
	progressChannel, err := transcoder.Start(argList(cmd.args))
	if err != nil {
		cmd.removeOutput()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return media.NewCancelledError(cmd.inputPath, ctxErr)
		}

		parsed := parseFfmpegError(err)
		return &media.TranscodeError{Kind: classifyOr(parsed, media.IOFailure), Input: cmd.inputPath, Err: parsed}
	}

	runningCommand := transcoder.GetRunningCmdInstance()
	for prog := range progressChannel {
		log.Emit(logger.VERBOSE, "%s progress %.2f%% (speed %s)\n", cmd.outputPath, prog.GetProgress(), prog.GetSpeed())
	}

	if err := ctx.Err(); err != nil {
		cmd.removeOutput()
		return media.NewCancelledError(cmd.inputPath, err)
	}

	// The progress channel is closed only once ffmpeg has been waited on, so the
	// process state is populated by now.
	if runningCommand != nil && runningCommand.ProcessState != nil && !runningCommand.ProcessState.Success() {
		cmd.removeOutput()
		exitErr := fmt.Errorf("ffmpeg exited abnormally (%s) while writing %s", runningCommand.ProcessState, cmd.outputPath)
		return &media.TranscodeError{Kind: classifyOr(exitErr, media.IOFailure), Input: cmd.inputPath, Err: exitErr}
	}

	info, err := os.Stat(cmd.outputPath)
	if err != nil || info.Size() == 0 {
		cmd.removeOutput()
		return &media.TranscodeError{Kind: media.IOFailure, Input: cmd.inputPath, Err: fmt.Errorf("ffmpeg did not produce output %s", cmd.outputPath)}
	}

	return nil
}

func (cmd *transcodeCommand) removeOutput() {
	if err := os.Remove(cmd.outputPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Emit(logger.ERROR, "Failed to remove partial transcode output %s: %v\n", cmd.outputPath, err)
	}
}

// classifyOr inspects the (ffmpeg) error message for well-known failure
// markers. If none are found the fallback kind is returned.
func classifyOr(err error, fallback media.TranscodeErrorKind) media.TranscodeErrorKind {
	message := err.Error()
	for _, marker := range unsupportedCodecMarkers {
		if strings.Contains(message, marker) {
			return media.UnsupportedCodec
		}
	}
	for _, marker := range corruptInputMarkers {
		if strings.Contains(message, marker) {
			return media.CorruptInput
		}
	}

	return fallback
}

func parseFfmpegError(err error) error {
	// Try and pick out some relevant information from the HUGE
	// output log from ffmpeg. The error we get contains lots of information
	// about how the binary was compiled... this is useless info, we just
	// want the 'message' JSON that is encoded inside.
	groups := messageMatcher.FindStringSubmatch(err.Error())
	if len(groups) == 0 {
		return err
	}

	var out map[string]interface{}
	if jsonErr := json.Unmarshal([]byte(groups[1]), &out); jsonErr != nil {
		return errors.New(groups[1])
	}

	ffmpegException, ok := out["error"].(map[string]interface{})
	if !ok {
		return errors.New(groups[1])
	}
	if message, ok := ffmpegException["string"].(string); ok {
		return errors.New(message)
	}

	return errors.New(groups[1])
}

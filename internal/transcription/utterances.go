package transcription

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/sdt-zeiss/prototype-ai/internal/models"
)

// TranscriptionResponse is the body of the polling endpoint.
type TranscriptionResponse struct {
	ID        string               `json:"id"`
	Status    string               `json:"status"`
	ErrorCode int                  `json:"error_code"`
	Result    *TranscriptionResult `json:"result"`
}

// TranscriptionResult holds the finished transcription.
type TranscriptionResult struct {
	Transcription struct {
		FullTranscript string            `json:"full_transcript"`
		Utterances     []VendorUtterance `json:"utterances"`
	} `json:"transcription"`
}

// VendorUtterance is one diarized segment as the vendor returns it.
type VendorUtterance struct {
	Text       string  `json:"text"`
	Speaker    int     `json:"speaker"`
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Confidence float64 `json:"confidence"`
	Language   string  `json:"language"`
}

// GenerateUtterances turns a finished response into one Utterance per vendor utterance, in vendor order.
// Timestamp is the start offset in seconds applied to the Unix epoch.
func GenerateUtterances(resp *TranscriptionResponse) ([]models.Utterance, error) {
	if resp == nil || resp.Result == nil {
		return nil, fmt.Errorf("%w: response has no result", ErrTranscriptionFailed)
	}

	vendorUtterances := resp.Result.Transcription.Utterances
	out := make([]models.Utterance, 0, len(vendorUtterances))

	for _, u := range vendorUtterances {
		out = append(out, models.Utterance{
			Text:      u.Text,
			Speaker:   u.Speaker,
			Timestamp: offsetToTime(u.Start),
			Start:     u.Start,
			End:       u.End,
		})
	}

	return out, nil
}

func offsetToTime(seconds float64) time.Time {
	return time.Unix(0, 0).UTC().Add(time.Duration(seconds * float64(time.Second)))
}

const csvTimeLayout = "2006-01-02 15:04:05.999999999"

// WriteCSV writes utterances as an indexed table with columns text, speaker and timestamp.
func WriteCSV(w io.Writer, utterances []models.Utterance) error {
	cw := csv.NewWriter(w)

	if err := cw.Write([]string{"", "text", "speaker", "timestamp"}); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	for i, u := range utterances {
		record := []string{
			strconv.Itoa(i),
			u.Text,
			strconv.Itoa(u.Speaker),
			u.Timestamp.Format(csvTimeLayout),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write csv row %d: %w", i, err)
		}
	}

	cw.Flush()

	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}

	return nil
}

// WriteSnapshot overwrites path with the CSV rendering of utterances.
func WriteSnapshot(path string, utterances []models.Utterance) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create snapshot: %w", err)
	}

	if err := WriteCSV(f, utterances); err != nil {
		_ = f.Close()

		return err
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("close snapshot: %w", err)
	}

	return nil
}

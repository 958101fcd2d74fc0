package ticketcode

import (
	"bytes"
	"encoding/base64"
	"errors"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const rawPayload = `{"ticketId":"T1","eventId":"E1","userId":"U1","bookingId":"B1"}`

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    *Payload
		wantErr error
	}{
		{
			name:  "raw json",
			input: rawPayload,
			want:  &Payload{TicketID: "T1", EventID: "E1", UserID: "U1", BookingID: "B1"},
		},
		{
			name:  "std base64",
			input: base64.StdEncoding.EncodeToString([]byte(rawPayload)),
			want:  &Payload{TicketID: "T1", EventID: "E1", UserID: "U1", BookingID: "B1"},
		},
		{
			name:  "url base64 without padding",
			input: base64.RawURLEncoding.EncodeToString([]byte(`{"ticketId":"GIFT-9"}`)),
			want:  &Payload{TicketID: "GIFT-9"},
		},
		{
			name:  "surrounding whitespace",
			input: "  " + rawPayload + "\n",
			want:  &Payload{TicketID: "T1", EventID: "E1", UserID: "U1", BookingID: "B1"},
		},
		{name: "empty", input: "   ", wantErr: ErrEmptyPayload},
		{name: "not base64", input: "%%%not-a-code%%%", wantErr: ErrInvalidPayload},
		{name: "base64 of non json", input: base64.StdEncoding.EncodeToString([]byte("hello")), wantErr: ErrInvalidPayload},
		{name: "broken json", input: `{"ticketId":`, wantErr: ErrInvalidPayload},
		{name: "missing ticket id", input: `{"eventId":"E1"}`, wantErr: ErrMissingTicket},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(tt.input)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPayload_IsGift(t *testing.T) {
	assert.True(t, Payload{TicketID: "GIFT-1"}.IsGift())
	assert.False(t, Payload{TicketID: "T-GIFT-1"}.IsGift())
}

func TestEncode_RoundTrip(t *testing.T) {
	p := Payload{TicketID: "T1", EventID: "E1", UserID: "U1"}

	code, err := Encode(p)
	require.NoError(t, err)
	assert.NotContains(t, code, "=")

	decoded, err := Decode(code)
	require.NoError(t, err)
	assert.Equal(t, p, *decoded)

	_, err = Encode(Payload{})
	assert.ErrorIs(t, err, ErrMissingTicket)
}

func TestRenderPNG(t *testing.T) {
	b, err := RenderPNG(Payload{TicketID: "T1", EventID: "E1", UserID: "U1"}, 0)
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(b))
	require.NoError(t, err)
	assert.Equal(t, DefaultImageSize, img.Bounds().Dx())

	_, err = RenderPNG(Payload{}, 128)
	assert.ErrorIs(t, err, ErrMissingTicket)
}

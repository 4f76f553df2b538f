package booking

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

const displayLayout = "Mon Jan 2, 2006 15:04 MST"

func formatStart(t time.Time) string {
	return t.UTC().Format(displayLayout)
}

// ConfirmLink builds the emailed confirmation URL for a token.
func ConfirmLink(baseURL, token string, party Party) string {
	q := url.Values{}
	q.Set("token", token)
	q.Set("who", string(party))
	return strings.TrimRight(baseURL, "/") + "/confirm?" + q.Encode()
}

func customerRequestMessage(c Customer, slot Slot, link string) Message {
	return Message{
		To:      c.Email,
		ToName:  c.Name,
		Subject: "Confirm your appointment " + formatStart(slot.Start),
		Body: fmt.Sprintf("Hello %s,\n\nPlease confirm your appointment for %s.\n\nConfirm appointment: %s\n\nIf you did not request this, ignore this email.\n",
			c.Name, formatStart(slot.Start), link),
	}
}

func providerRequestMessage(provider string, c Customer, slot Slot, link string) Message {
	contact := c.Email
	if c.Phone != "" {
		contact += ", " + c.Phone
	}
	return Message{
		To:      provider,
		Subject: "New appointment request " + formatStart(slot.Start),
		Body: fmt.Sprintf("Request from %s (%s) for %s.\n\nConfirm as provider: %s\n",
			c.Name, contact, formatStart(slot.Start), link),
	}
}

func customerBookedMessage(c Customer, slot Slot) Message {
	return Message{
		To:      c.Email,
		ToName:  c.Name,
		Subject: "Appointment confirmed",
		Body:    fmt.Sprintf("Your appointment for %s is confirmed.\n", formatStart(slot.Start)),
	}
}

func providerBookedMessage(provider string, c Customer, slot Slot) Message {
	return Message{
		To:      provider,
		Subject: "Appointment confirmed",
		Body:    fmt.Sprintf("Confirmed appointment with %s for %s.\n", c.Name, formatStart(slot.Start)),
	}
}

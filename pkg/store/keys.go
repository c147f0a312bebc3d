package store

import "fmt"

// Key layout:
//
//	user:<id>                          models.User
//	car:<id>                           models.Car
//	chatmeta:<id>                      models.Chat
//	chat:<id>:msg:<ts20>-<seq20>       models.Message
//	chat:<id>:msgid:<msgID>            message key
//	idx:chat:car:<customer>:<car>      chat id of the current pairing
//	idx:chat:support:<customer>        chat id of the current pairing
//	lead:<id>                          models.Lead
//	promo:<id>                         models.Promotion
//	appt:<leadID>                      models.Appointment
const (
	userPrefix     = "user:"
	carPrefix      = "car:"
	chatMetaPrefix = "chatmeta:"
	leadPrefix     = "lead:"
	promoPrefix    = "promo:"
	apptPrefix     = "appt:"
)

func userKey(id string) string     { return userPrefix + id }
func carKey(id string) string      { return carPrefix + id }
func chatMetaKey(id string) string { return chatMetaPrefix + id }
func leadKey(id string) string     { return leadPrefix + id }
func promoKey(id string) string    { return promoPrefix + id }
func apptKey(leadID string) string { return apptPrefix + leadID }

func chatPrefix(chatID string) string    { return "chat:" + chatID + ":" }
func messagePrefix(chatID string) string { return "chat:" + chatID + ":msg:" }

func messageKey(chatID string, ts int64, seq uint64) string {
	return fmt.Sprintf("chat:%s:msg:%020d-%020d", chatID, ts, seq)
}

func messageIDKey(chatID, msgID string) string {
	return "chat:" + chatID + ":msgid:" + msgID
}

// pairingKey identifies the customer/car (or customer/support) pairing.
func pairingKey(customerID, carID string) string {
	if carID == "" {
		return "idx:chat:support:" + customerID
	}
	return "idx:chat:car:" + customerID + ":" + carID
}

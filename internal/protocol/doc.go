// Package protocol defines the JSON messages exchanged with devices and
// dashboard clients.
//
// Each direction is a closed set of variants. Device messages implement the
// sealed DeviceMessage interface and are routed with Dispatch to a
// DeviceHandler, which has one method per variant; a new variant cannot
// compile until every handler handles it. Events and hub-to-device messages
// are sealed the same way.
//
// Device frames are discriminated by "type":
//
//	{"type":"device:connect","token":"...","phoneNumber":"+225..."}
//	{"type":"message:result","commandId":"...","success":true}
//
// Earlier firmware used sms:result, sms:received and ussd:result with the
// correlation key in "id" and the SMS text in "message"; those forms decode
// to the same variants.
package protocol

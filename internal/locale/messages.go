package locale

// Key identifies a user-facing message.
type Key string

const (
	MsgDeviceError        Key = "device_error"
	MsgDeviceBusy         Key = "device_busy"
	MsgUnsupportedFormat  Key = "unsupported_format"
	MsgUploadFailed       Key = "upload_failed"
	MsgMetadataSaveFailed Key = "metadata_save_failed"
	MsgNotFound           Key = "not_found"
	MsgConfirmDiscard     Key = "confirm_discard"
	MsgCaptureBusy        Key = "capture_busy"
	MsgNoCapture          Key = "no_capture"
	MsgInvalidState       Key = "invalid_state"
	MsgInvalidRequest     Key = "invalid_request"
	MsgThumbnailsPending  Key = "thumbnails_pending"
	MsgMissingFields      Key = "missing_fields"
	MsgPublished          Key = "published"
	MsgNewsPublished      Key = "news_published"
	MsgSaved              Key = "saved"
	MsgUnauthorized       Key = "unauthorized"
	MsgInternal           Key = "internal"
)

var messages = map[string]map[Key]string{
	Dutch: {
		MsgDeviceError:        "Kan geen toegang krijgen tot de camera. Controleer of je toestemming hebt gegeven.",
		MsgDeviceBusy:         "De camera is al in gebruik.",
		MsgUnsupportedFormat:  "Opnemen wordt niet ondersteund op dit apparaat.",
		MsgUploadFailed:       "Er ging iets mis bij het uploaden. Probeer opnieuw.",
		MsgMetadataSaveFailed: "De video is geüpload maar kon niet worden opgeslagen in de galerij.",
		MsgNotFound:           "Deze video bestaat niet meer.",
		MsgConfirmDiscard:     "Weet je zeker dat je deze video wilt verwijderen?",
		MsgCaptureBusy:        "Er is al een opname bezig.",
		MsgNoCapture:          "Er is geen opname geopend.",
		MsgInvalidState:       "Deze actie is nu niet mogelijk.",
		MsgInvalidRequest:     "Ongeldig verzoek.",
		MsgThumbnailsPending:  "De miniaturen worden nog gemaakt.",
		MsgMissingFields:      "Vul een titel en inhoud in",
		MsgPublished:          "Video is online gezet!",
		MsgNewsPublished:      "Nieuws gepubliceerd!",
		MsgSaved:              "Opgeslagen!",
		MsgUnauthorized:       "Niet aangemeld.",
		MsgInternal:           "Er ging iets mis. Probeer opnieuw.",
	},
	EnglishUS: {
		MsgDeviceError:        "Cannot access the camera. Check that permission was granted.",
		MsgDeviceBusy:         "The camera is already in use.",
		MsgUnsupportedFormat:  "Recording is not supported on this device.",
		MsgUploadFailed:       "Something went wrong while uploading. Please try again.",
		MsgMetadataSaveFailed: "The video was uploaded but could not be added to the gallery.",
		MsgNotFound:           "This video no longer exists.",
		MsgConfirmDiscard:     "Are you sure you want to delete this video?",
		MsgCaptureBusy:        "A capture is already in progress.",
		MsgNoCapture:          "No capture is open.",
		MsgInvalidState:       "This action is not possible right now.",
		MsgInvalidRequest:     "Invalid request.",
		MsgThumbnailsPending:  "Thumbnails are still being generated.",
		MsgMissingFields:      "Please enter a title and content",
		MsgPublished:          "Video published!",
		MsgNewsPublished:      "News published!",
		MsgSaved:              "Saved!",
		MsgUnauthorized:       "Not signed in.",
		MsgInternal:           "Something went wrong. Please try again.",
	},
}

// Message returns the localized text for key. English GB shares the US
// strings.
func Message(tag string, key Key) string {
	lang := Normalize(tag)
	if lang == EnglishGB {
		lang = EnglishUS
	}
	if m, ok := messages[lang][key]; ok {
		return m
	}
	if m, ok := messages[EnglishUS][key]; ok {
		return m
	}
	return string(key)
}

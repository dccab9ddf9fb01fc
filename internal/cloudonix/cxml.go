package cloudonix

// HangupCXML is the degraded call-control document returned with HTTP 200
// when the bootstrap path cannot produce the application's own markup. The
// gateway treats non-200 answers as retryable; a clean hangup ends the call
// instead of looping it.
const HangupCXML = `<?xml version="1.0" encoding="UTF-8"?><Response><Hangup/></Response>`

const cxmlContentType = "application/xml"

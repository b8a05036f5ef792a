// Package http implements the HTTP handlers of the DataPulse API.
// Handlers stay thin: they parse the request, call into a session and
// render the result. Business rules live in the session and the packages
// it owns.
//
// # Routes
//
// Mounted by the application under /api/v1:
//
//	POST   /sessions                          open an analysis session
//	DELETE /sessions/{id}                     close it
//	POST   /sessions/{id}/files               multipart upload, field "files"
//	GET    /sessions/{id}/departments         distinct students per department
//	GET    /sessions/{id}/subjects            subject codes and semesters
//	GET    /sessions/{id}/records             normalized records
//	PUT    /sessions/{id}/credits/{phase}     phase is current or cumulative
//	POST   /sessions/{id}/compute/current     SGPA for the current semester
//	POST   /sessions/{id}/compute/cumulative  CGPA over all semesters
//	GET    /sessions/{id}/report              ?department= narrows the report
//	GET    /sessions/{id}/export.{format}     csv, xlsx or json download
//
// # Responses
//
// Successful responses are wrapped as {"status": "success", "data": ...}.
// Failures are RFC 7807 problem documents rendered by the errors package;
// credit validation problems arrive together in an "errors" extension:
//
//	{
//	    "type": "/errors/credits/invalid",
//	    "title": "Credit Assignment Invalid",
//	    "status": 422,
//	    "errors": [{"code": "INCOMPLETE_ASSIGNMENT", "subjects": ["CS102"], ...}]
//	}
package http

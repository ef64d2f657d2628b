// Package model defines the row-level types shared across the tracker and
// the worker pools. Entities carry id-only references to their parents
// rather than navigating an entity graph — the tracker is the only owner
// of the data, workers hold plain copies.
package model

import "time"

// Phase is a pipeline stage. Ids are assigned in insertion order and that
// order is semantic: comparisons in the escalation matrix rely on it.
type Phase int

const (
	PhaseDownload Phase = iota + 1
	PhaseZipName
	PhaseZipMD5
	PhaseUnzip
	PhaseXMLName
	PhaseXSD
	PhaseUpload
	PhaseData
	PhaseContext
	PhaseOverview
	PhaseQC
)

var phaseNames = map[Phase]string{
	PhaseDownload: "download",
	PhaseZipName:  "zip_name",
	PhaseZipMD5:   "zip_md5",
	PhaseUnzip:    "unzip",
	PhaseXMLName:  "xml_name",
	PhaseXSD:      "xsd",
	PhaseUpload:   "upload",
	PhaseData:     "data",
	PhaseContext:  "context",
	PhaseOverview: "overview",
	PhaseQC:       "qc",
}

// Phases lists every seeded phase in insertion order.
var Phases = []Phase{
	PhaseDownload, PhaseZipName, PhaseZipMD5, PhaseUnzip, PhaseXMLName,
	PhaseXSD, PhaseUpload, PhaseData, PhaseContext, PhaseOverview, PhaseQC,
}

func (p Phase) String() string {
	if n, ok := phaseNames[p]; ok {
		return n
	}
	return "unknown"
}

// Status is an ordered severity. Ids are assigned pending < running <
// done < cancelled < failed.
type Status int

const (
	StatusPending Status = iota + 1
	StatusRunning
	StatusDone
	StatusCancelled
	StatusFailed
)

var statusNames = map[Status]string{
	StatusPending:   "pending",
	StatusRunning:   "running",
	StatusDone:      "done",
	StatusCancelled: "cancelled",
	StatusFailed:    "failed",
}

// Statuses lists every seeded status in insertion order.
var Statuses = []Status{StatusPending, StatusRunning, StatusDone, StatusCancelled, StatusFailed}

func (s Status) String() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return "unknown"
}

// PhaseStatus is the (phase, status) pair every ZipAction, ZipDownload and
// XmlFile carries.
type PhaseStatus struct {
	Phase  Phase
	Status Status
}

func (ps PhaseStatus) Failed() bool { return ps.Status == StatusFailed }

// ProcessingType ("todo") names which of the three sub-directories a
// package was discovered under.
type ProcessingType string

const (
	ActionAdd    ProcessingType = "add"
	ActionEdit   ProcessingType = "edit"
	ActionDelete ProcessingType = "delete"
)

// ProcessingTypes lists the three sub-directories discovery walks.
var ProcessingTypes = []ProcessingType{ActionAdd, ActionEdit, ActionDelete}

// SourceProtocol enumerates the transport a FileSource speaks.
type SourceProtocol string

const (
	ProtocolFTP  SourceProtocol = "ftp"
	ProtocolSFTP SourceProtocol = "sftp"
	ProtocolHTTP SourceProtocol = "http"
)

// ResourceState enumerates a FileSource's availability.
type ResourceState string

const (
	ResourceAvailable   ResourceState = "available"
	ResourceMaintenance ResourceState = "maintenance"
	ResourceRemoved     ResourceState = "removed"
)

// Centre is a contributing institution.
type Centre struct {
	ID        int64
	ShortName string
	Name      string
	Active    bool
}

// FileSource is a remote endpoint owned by a Centre.
type FileSource struct {
	ID            int64
	CentreID      int64
	Hostname      string
	Protocol      SourceProtocol
	BasePath      string
	Username      string
	Password      string
	IdentityFile  string // sftp key auth goes through the local ssh-agent; this path only appears in its error message
	ResourceState ResourceState
}

// ZipFile is a named archive ever seen, unique by filename.
type ZipFile struct {
	ID        int64
	Filename  string
	CentreID  *int64 // nil when the tokenizer failed to match
	Release   *time.Time
	Increment *int
	SizeBytes int64
}

// ZipAction is a (ZipFile, ProcessingType) pair with a current phase/status.
type ZipAction struct {
	ID     int64
	ZipID  int64
	Todo   ProcessingType
	Phase  Phase
	Status Status
}

// FileSourceHasZip is a candidate hosting relation.
type FileSourceHasZip struct {
	ID           int64
	FileSourceID int64
	ZipActionID  int64
	Rating       int
}

// ZipDownload is an attempt (or completed download) of a FileSourceHasZip.
type ZipDownload struct {
	ID               int64
	FileSourceHasZip int64
	Started          time.Time
	LastReceived     time.Time
	BytesReceived    int64
	Phase            Phase
	Status           Status
}

// XmlFile is an inner document inside a ZipDownload.
type XmlFile struct {
	ID          int64
	ZipDownload int64
	Name        string
	CentreID    *int64
	Created     *time.Time
	Increment   *int
	SizeBytes   int64
	Phase       Phase
	Status      Status
	Specimen    bool
}

// CrawlingSession is one pipeline invocation.
type CrawlingSession struct {
	ID      int64
	UUID    string
	Started time.Time
	Ended   *time.Time
	Status  Status
}

// SessionTask is one subprocess invocation inside a session.
type SessionTask struct {
	ID        int64
	SessionID int64
	Phase     Phase
	Started   time.Time
	Ended     *time.Time
	ExitCode  int
	Comment   string
}

// ZipLog / XmlLog are append-only error annotations.
type ZipLog struct {
	ID            int64
	ZipDownloadID int64
	ExceptionID   int64
	Message       string
	Line          *int
	Column        *int
}

type XmlLog struct {
	ID          int64
	XmlFileID   int64
	ExceptionID int64
	Message     string
	Line        *int
	Column      *int
}

// AnException is an interned exception short-name.
type AnException struct {
	ID        int64
	ShortName string
}

package domain

import "errors"

// ErrIncompleteRecord is returned when a wire record lacks the fields every
// endpoint must carry.
var ErrIncompleteRecord = errors.New("endpoint record missing uid or sender")

// EndpointRecord is the JSON representation of one endpoint exchanged between
// frameworks by the discovery protocol.
type EndpointRecord struct {
	Sender         string         `json:"sender"`
	UID            string         `json:"uid"`
	Configurations []string       `json:"configurations"`
	Name           string         `json:"name"`
	Specifications []string       `json:"specifications"`
	Properties     map[string]any `json:"properties"`
}

// MakeRecord converts an endpoint into its wire record, stamped with the
// sending framework's UID. All fields are copied.
func MakeRecord(endpoint *Endpoint, sender string) EndpointRecord {
	return EndpointRecord{
		Sender:         sender,
		UID:            endpoint.UID,
		Configurations: copyStrings(endpoint.Configurations),
		Name:           endpoint.Name,
		Specifications: copyStrings(endpoint.Specifications),
		Properties:     CopyProperties(endpoint.Properties),
	}
}

// Validate reports whether the record carries the minimum fields required to
// build an import endpoint.
func (r EndpointRecord) Validate() error {
	if r.UID == "" || r.Sender == "" {
		return ErrIncompleteRecord
	}
	return nil
}

// ToImport applies the export-to-import property transform and builds the
// import endpoint, tagged with the address of the host that announced it:
//
//  1. imported is set;
//  2. exported.configs, when present, is copied to imported.configs;
//  3. exported.configs and exported.interfaces are removed;
//  4. framework.uid is set to the sender.
func (r EndpointRecord) ToImport(hostAddress string) (*ImportEndpoint, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}

	props := CopyProperties(r.Properties)
	props[PropImported] = true
	if configs, ok := props[PropExportedConfigs]; ok {
		props[PropImportedConfigs] = configs
	}
	delete(props, PropExportedConfigs)
	delete(props, PropExportedInterfaces)
	props[PropFrameworkUID] = r.Sender

	return &ImportEndpoint{
		Endpoint: Endpoint{
			UID:            r.UID,
			Name:           r.Name,
			FrameworkUID:   r.Sender,
			Configurations: copyStrings(r.Configurations),
			Specifications: copyStrings(r.Specifications),
			Properties:     props,
		},
		Server: hostAddress,
	}, nil
}

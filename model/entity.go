package model

// Connection is one edge of an entity as seen from that entity
type Connection struct {
	EntityID     string `json:"entity_id"`
	RelationType string `json:"relation_type"`
}

// EntityInfo describes an entity's neighbourhood, used for importance scoring
type EntityInfo struct {
	InboundConnections  []Connection `json:"inbound_connections"`
	OutboundConnections []Connection `json:"outbound_connections"`
	Properties          Metadata     `json:"properties,omitempty"`
	Type                string       `json:"type"`
}

// ConnectionCount returns the number of inbound and outbound connections
func (e *EntityInfo) ConnectionCount() int {
	return len(e.InboundConnections) + len(e.OutboundConnections)
}

// DistinctRelationTypes counts the distinct relation types over all connections
func (e *EntityInfo) DistinctRelationTypes() int {
	seen := map[string]struct{}{}
	for _, c := range e.InboundConnections {
		seen[c.RelationType] = struct{}{}
	}
	for _, c := range e.OutboundConnections {
		seen[c.RelationType] = struct{}{}
	}
	return len(seen)
}

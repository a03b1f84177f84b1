package config

// DefaultPort is the port the Percy process listens on.
const DefaultPort = 5338

// Core is the contribution every percy invocation registers before any
// command contributes its own.
func Core() Contribution {
	return Contribution{
		Schema: Schema{
			"version": {
				Type:        TypeInt,
				Description: "Config file version",
				Default:     CurrentVersion,
			},
			"percy.host": {
				Type:        TypeString,
				Description: "Host the Percy process listens on",
				Default:     "localhost",
			},
			"percy.port": {
				Type:        TypeInt,
				Description: "Port the Percy process listens on",
				Default:     DefaultPort,
				Min:         Ptr(1),
				Max:         Ptr(65535),
			},
			"snapshot.widths": {
				Type:        TypeArray,
				Description: "Widths to capture snapshots at",
				Default:     []any{375, 1280},
				Min:         Ptr(1),
			},
			"snapshot.min-height": {
				Type:        TypeInt,
				Description: "Minimum snapshot height",
				Default:     1024,
				Expr:        "value >= 10 && value <= 2000",
			},
			"snapshot.percy-css": {
				Type:        TypeString,
				Description: "CSS injected into every snapshot",
			},
			"snapshot.enable-javascript": {
				Type: TypeBool,
			},
			"discovery.allowed-hostnames": {
				Type: TypeArray,
			},
			"discovery.disallowed-hostnames": {
				Type: TypeArray,
			},
			"discovery.network-idle-timeout": {
				Type:        TypeInt,
				Description: "Milliseconds to wait for the network to idle",
				Min:         Ptr(1),
				Max:         Ptr(750),
			},
			"discovery.concurrency": {
				Type: TypeInt,
				Min:  Ptr(1),
			},
			"discovery.disable-cache": {
				Type: TypeBool,
			},
		},
		Migrations: []Migration{{
			Name:  "core",
			From:  "< 2",
			To:    2,
			Apply: migrateAgentDiscovery,
		}},
	}
}

// migrateAgentDiscovery moves the v1 agent.asset-discovery section to
// discovery and drops the agent section.
func migrateAgentDiscovery(obj Object) Object {
	Move(obj, "agent.asset-discovery.allowed-hostnames", "discovery.allowed-hostnames")
	Move(obj, "agent.asset-discovery.network-idle-timeout", "discovery.network-idle-timeout")
	Move(obj, "agent.asset-discovery.page-pool-size-max", "discovery.concurrency")
	if v, ok := obj.Get("agent.asset-discovery.cache-responses"); ok {
		if b, ok := v.(bool); ok && !obj.Has("discovery.disable-cache") {
			obj.Set("discovery.disable-cache", !b)
		}
	}
	obj.Delete("agent")
	return obj
}

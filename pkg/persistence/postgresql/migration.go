package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE journeys (
				id TEXT PRIMARY KEY,
				tenant_id TEXT NOT NULL,
				name VARCHAR(255) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				status VARCHAR(20) NOT NULL CHECK (status IN ('DRAFT', 'ACTIVE', 'PAUSED', 'ARCHIVED')),
				schedule JSONB,
				entry_criteria JSONB,
				removal_criteria JSONB NOT NULL DEFAULT '{}',
				auto_enroll BOOLEAN NOT NULL DEFAULT false,
				started_at TIMESTAMP WITH TIME ZONE,
				paused_at TIMESTAMP WITH TIME ZONE,
				archived_at TIMESTAMP WITH TIME ZONE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_journeys_tenant ON journeys(tenant_id);

			CREATE TABLE journey_nodes (
				journey_id TEXT NOT NULL REFERENCES journeys(id) ON DELETE CASCADE,
				id TEXT NOT NULL,
				node_type VARCHAR(50) NOT NULL,
				name VARCHAR(255) NOT NULL DEFAULT '',
				config JSONB NOT NULL DEFAULT '{}',
				connections JSONB NOT NULL DEFAULT '{}',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				PRIMARY KEY (journey_id, id)
			);

			CREATE TABLE contacts (
				id TEXT PRIMARY KEY,
				tenant_id TEXT NOT NULL,
				first_name TEXT NOT NULL DEFAULT '',
				last_name TEXT NOT NULL DEFAULT '',
				phone TEXT NOT NULL DEFAULT '',
				email TEXT NOT NULL DEFAULT '',
				opted_out BOOLEAN NOT NULL DEFAULT false,
				lead_status TEXT NOT NULL DEFAULT '',
				timezone TEXT NOT NULL DEFAULT '',
				attributes JSONB NOT NULL DEFAULT '{}',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_contacts_tenant_phone ON contacts(tenant_id, phone);

			CREATE TABLE journey_contacts (
				id TEXT PRIMARY KEY,
				journey_id TEXT NOT NULL REFERENCES journeys(id) ON DELETE CASCADE,
				tenant_id TEXT NOT NULL,
				contact_id TEXT NOT NULL,
				status VARCHAR(20) NOT NULL CHECK (status IN ('ACTIVE', 'PAUSED', 'COMPLETED', 'REMOVED')),
				current_node_id TEXT NOT NULL DEFAULT '',
				source TEXT NOT NULL DEFAULT '',
				enrollment_data JSONB,
				status_reason TEXT NOT NULL DEFAULT '',
				enrolled_at TIMESTAMP WITH TIME ZONE NOT NULL,
				paused_at TIMESTAMP WITH TIME ZONE,
				completed_at TIMESTAMP WITH TIME ZONE,
				removed_at TIMESTAMP WITH TIME ZONE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				UNIQUE (journey_id, contact_id)
			);

			CREATE INDEX idx_journey_contacts_status ON journey_contacts(tenant_id, status, enrolled_at);

			CREATE TABLE journey_node_executions (
				id TEXT PRIMARY KEY,
				tenant_id TEXT NOT NULL DEFAULT '',
				journey_id TEXT NOT NULL DEFAULT '',
				journey_contact_id TEXT NOT NULL,
				node_id TEXT NOT NULL,
				node_type VARCHAR(50) NOT NULL DEFAULT '',
				status VARCHAR(20) NOT NULL CHECK (status IN ('PENDING', 'EXECUTING', 'COMPLETED', 'FAILED', 'SKIPPED')),
				awaiting_callback VARCHAR(50) NOT NULL DEFAULT '',
				call_correlation_id TEXT NOT NULL DEFAULT '',
				call_phone TEXT NOT NULL DEFAULT '',
				scheduled_at TIMESTAMP WITH TIME ZONE NOT NULL,
				executed_at TIMESTAMP WITH TIME ZONE,
				completed_at TIMESTAMP WITH TIME ZONE,
				result JSONB NOT NULL DEFAULT '{}',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			-- At most one open execution per (node, journey contact).
			CREATE UNIQUE INDEX uq_executions_open
				ON journey_node_executions(journey_contact_id, node_id)
				WHERE status IN ('PENDING', 'EXECUTING');

			CREATE INDEX idx_executions_due ON journey_node_executions(scheduled_at) WHERE status = 'PENDING';
			CREATE INDEX idx_executions_contact ON journey_node_executions(journey_contact_id, node_id, executed_at);
			CREATE INDEX idx_executions_awaiting ON journey_node_executions(call_correlation_id) WHERE awaiting_callback <> '';
		`,
		2: `
			CREATE TABLE tenant_settings (
				tenant_id TEXT PRIMARY KEY,
				settings JSONB NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE TABLE campaigns (
				id TEXT PRIMARY KEY,
				tenant_id TEXT NOT NULL,
				name TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE TABLE campaign_members (
				campaign_id TEXT NOT NULL REFERENCES campaigns(id) ON DELETE CASCADE,
				contact_id TEXT NOT NULL,
				added_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				PRIMARY KEY (campaign_id, contact_id)
			);

			CREATE TABLE webhooks (
				id TEXT PRIMARY KEY,
				tenant_id TEXT NOT NULL,
				name TEXT NOT NULL DEFAULT '',
				url TEXT NOT NULL,
				method VARCHAR(10) NOT NULL DEFAULT 'POST',
				headers JSONB,
				body TEXT NOT NULL DEFAULT ''
			);

			CREATE TABLE call_logs (
				id TEXT PRIMARY KEY,
				tenant_id TEXT NOT NULL,
				contact_id TEXT NOT NULL DEFAULT '',
				execution_id TEXT NOT NULL DEFAULT '',
				phone TEXT NOT NULL,
				correlation_id TEXT NOT NULL DEFAULT '',
				status TEXT NOT NULL DEFAULT '',
				in_flight BOOLEAN NOT NULL DEFAULT false,
				transferred BOOLEAN NOT NULL DEFAULT false,
				duration_seconds INTEGER NOT NULL DEFAULT 0,
				started_at TIMESTAMP WITH TIME ZONE NOT NULL,
				ended_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_call_logs_phone ON call_logs(tenant_id, phone, started_at DESC);
			CREATE INDEX idx_call_logs_correlation ON call_logs(correlation_id);

			CREATE TABLE inbound_messages (
				id TEXT PRIMARY KEY,
				tenant_id TEXT NOT NULL,
				contact_id TEXT NOT NULL,
				journey_id TEXT NOT NULL DEFAULT '',
				campaign_id TEXT NOT NULL DEFAULT '',
				body TEXT NOT NULL DEFAULT '',
				received_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_inbound_messages_contact ON inbound_messages(tenant_id, contact_id, received_at);
		`,
		3: `
			ALTER TABLE journey_contacts ADD COLUMN enrollment INTEGER NOT NULL DEFAULT 1;
			ALTER TABLE journey_node_executions ADD COLUMN enrollment INTEGER NOT NULL DEFAULT 1;
		`,
	}
}

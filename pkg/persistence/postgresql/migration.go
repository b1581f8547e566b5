package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			-- Workspaces and their memberships
			CREATE TABLE workspaces (
				id VARCHAR(255) PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				owner_id VARCHAR(255) NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE TABLE workspace_members (
				workspace_id VARCHAR(255) NOT NULL REFERENCES workspaces(id) ON DELETE CASCADE,
				user_id VARCHAR(255) NOT NULL,
				role VARCHAR(50) NOT NULL CHECK (role IN ('owner', 'admin', 'member', 'viewer')),
				joined_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				PRIMARY KEY (workspace_id, user_id)
			);

			CREATE INDEX idx_workspace_members_user_id ON workspace_members(user_id);

			-- Workflow rows; the graph lives in the workflow_* tables below
			CREATE TABLE workflows (
				id VARCHAR(255) PRIMARY KEY,
				user_id VARCHAR(255) NOT NULL,
				workspace_id VARCHAR(255) REFERENCES workspaces(id) ON DELETE SET NULL,
				folder_id VARCHAR(255),
				name VARCHAR(255) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				color VARCHAR(50) NOT NULL DEFAULT '',
				marketplace_data JSONB,
				is_deployed BOOLEAN NOT NULL DEFAULT false,
				deployed_at TIMESTAMP WITH TIME ZONE,
				deployment_statuses JSONB,
				has_active_webhook BOOLEAN NOT NULL DEFAULT false,
				is_published BOOLEAN NOT NULL DEFAULT false,
				last_saved BIGINT NOT NULL DEFAULT 0,
				last_synced TIMESTAMP WITH TIME ZONE NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				deleted_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_workflows_user_id ON workflows(user_id);
			CREATE INDEX idx_workflows_workspace_id ON workflows(workspace_id);
			CREATE INDEX idx_workflows_deleted_at ON workflows(deleted_at);

			CREATE TABLE workflow_blocks (
				workflow_id VARCHAR(255) NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
				id VARCHAR(255) NOT NULL,
				type VARCHAR(50) NOT NULL,
				name VARCHAR(255) NOT NULL DEFAULT '',
				position_x DOUBLE PRECISION NOT NULL DEFAULT 0,
				position_y DOUBLE PRECISION NOT NULL DEFAULT 0,
				parent_id VARCHAR(255),
				extent VARCHAR(50),
				enabled BOOLEAN NOT NULL DEFAULT true,
				horizontal_handles BOOLEAN NOT NULL DEFAULT true,
				is_wide BOOLEAN NOT NULL DEFAULT false,
				height DOUBLE PRECISION NOT NULL DEFAULT 0,
				data JSONB,
				sub_blocks JSONB,
				outputs JSONB,
				PRIMARY KEY (workflow_id, id)
			);

			CREATE INDEX idx_workflow_blocks_parent_id ON workflow_blocks(workflow_id, parent_id);

			-- Edge endpoints are not foreign keys: duplication may keep an unmapped endpoint id
			CREATE TABLE workflow_edges (
				workflow_id VARCHAR(255) NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
				id VARCHAR(255) NOT NULL,
				ordinal INTEGER NOT NULL,
				source_block_id VARCHAR(255) NOT NULL,
				target_block_id VARCHAR(255) NOT NULL,
				source_handle VARCHAR(255),
				target_handle VARCHAR(255),
				type VARCHAR(50),
				PRIMARY KEY (workflow_id, id)
			);

			CREATE TABLE workflow_subflows (
				workflow_id VARCHAR(255) NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
				id VARCHAR(255) NOT NULL,
				type VARCHAR(50) NOT NULL CHECK (type IN ('loop', 'parallel')),
				config JSONB NOT NULL,
				PRIMARY KEY (workflow_id, id)
			);

			-- Copilot checkpoints keep a weak reference to their workflow
			CREATE TABLE copilot_checkpoints (
				id VARCHAR(255) PRIMARY KEY,
				user_id VARCHAR(255) NOT NULL,
				workflow_id VARCHAR(255) NOT NULL,
				chat_id VARCHAR(255) NOT NULL,
				message_id VARCHAR(255),
				workflow_state JSONB NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_copilot_checkpoints_chat ON copilot_checkpoints(user_id, chat_id, created_at DESC);
			CREATE INDEX idx_copilot_checkpoints_created_at ON copilot_checkpoints(created_at);
		`,
	}
}

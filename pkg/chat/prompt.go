package chat

// ChatWidget is the markup that loads the chat interface into a page.
const ChatWidget = `<!-- Load the chat interface -->
<link rel="stylesheet" href="/chat.css" />
<script type="module" src="/chat.js"></script>`

// SystemPrompt instructs the model to keep the chat widget in /index.html.
const SystemPrompt = `You are an experienced web developer and your job is to help the user update their static website.

IMPORTANT: any time you modify the /index.html file make sure to include the following code:

` + ChatWidget

// DefaultModel is used when the configuration names none.
const DefaultModel = "claude-sonnet-4"

package api

import (
	"net/http"
)

const sharedCSS = `
        * { box-sizing: border-box; margin: 0; padding: 0; }
        body {
            font-family: monospace;
            background: #1a1a2e;
            color: #eee;
            min-height: 100vh;
            display: flex;
            flex-direction: column;
        }
        header {
            background: #16213e;
            padding: 12px 20px;
            border-bottom: 1px solid #0f3460;
            display: flex;
            justify-content: space-between;
            align-items: center;
        }
        header h1 { font-size: 16px; font-weight: normal; }
        footer {
            background: #16213e;
            padding: 8px 20px;
            border-top: 1px solid #0f3460;
            font-size: 11px;
            color: #6b7280;
        }
        button {
            background: #2563eb;
            border: none;
            border-radius: 4px;
            padding: 8px 14px;
            color: #fff;
            font-family: monospace;
            font-size: 13px;
            cursor: pointer;
        }
        button:hover { background: #1d4ed8; }
        button.start { background: #059669; }
        button.start:hover { background: #047857; }
        button.stop { background: #dc2626; }
        button.stop:hover { background: #b91c1c; }
        input {
            background: #1a1a2e;
            border: 1px solid #0f3460;
            border-radius: 4px;
            padding: 8px 10px;
            color: #eee;
            font-family: monospace;
            font-size: 13px;
        }
        input:focus { outline: none; border-color: #2563eb; }
`

const playerUIHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Sentient Story</title>
    <style>` + sharedCSS + `
        main { flex: 1; padding: 24px; max-width: 760px; margin: 0 auto; width: 100%; }
        .panel {
            background: #16213e;
            border-radius: 4px;
            border-left: 3px solid #0f3460;
            padding: 16px;
            margin-bottom: 16px;
            white-space: pre-wrap;
            line-height: 1.5;
        }
        .panel.outcome { border-left-color: #059669; }
        .panel.outcome.lost { border-left-color: #dc2626; }
        .choices { display: flex; flex-direction: column; gap: 8px; margin-bottom: 16px; }
        .choices button { text-align: left; }
        .row { display: flex; gap: 8px; margin-bottom: 16px; flex-wrap: wrap; }
        .muted { color: #9ca3af; font-size: 12px; }
        table { width: 100%; border-collapse: collapse; font-size: 13px; }
        td, th { padding: 4px 8px; border-bottom: 1px solid #0f3460; text-align: left; }
        #error { color: #fca5a5; min-height: 1em; margin-bottom: 8px; }
    </style>
</head>
<body>
    <header>
        <h1 id="title">Sentient Story</h1>
        <span class="muted" id="player"></span>
    </header>
    <main>
        <div id="error"></div>
        <div id="menu">
            <div class="row">
                <input type="text" id="name" placeholder="Your name">
                <button class="start" onclick="newGame()">New game</button>
            </div>
            <div class="row">
                <button onclick="showInfo('how_to_play', 'How to play')">How to play</button>
                <button onclick="showInfo('about', 'About')">About</button>
                <button onclick="showInfo('credits', 'Credits')">Credits</button>
                <button onclick="showRegistry()">Registry</button>
            </div>
        </div>
        <div id="content"></div>
    </main>
    <footer>
        Choices are numbered from 1. Each playthrough is recorded in the registry until it is full.
    </footer>

    <script>
        const content = document.getElementById('content');
        const errorEl = document.getElementById('error');
        let story = null;
        let session = null;

        function el(tag, cls, text) {
            const e = document.createElement(tag);
            if (cls) e.className = cls;
            if (text !== undefined) e.textContent = text;
            return e;
        }

        function api(method, path, body) {
            const opts = { method: method, headers: {} };
            if (body !== undefined) {
                opts.headers['Content-Type'] = 'application/json';
                opts.body = JSON.stringify(body);
            }
            return fetch(path, opts).then(function(res) {
                if (res.status === 204) return null;
                return res.json().then(function(data) {
                    if (!res.ok) throw new Error(data.error || res.statusText);
                    return data;
                });
            });
        }

        function fail(err) { errorEl.textContent = err.message; }

        function showInfo(key, heading) {
            errorEl.textContent = '';
            content.replaceChildren(el('h3', '', heading), el('div', 'panel', (story && story[key]) || 'Nothing here yet.'));
        }

        function showRegistry() {
            errorEl.textContent = '';
            api('GET', '/registry').then(function(reg) {
                const table = el('table');
                const head = el('tr');
                head.append(el('th', '', '#'), el('th', '', 'Player'), el('th', '', 'Outcome'));
                table.append(head);
                reg.entries.forEach(function(e, i) {
                    const tr = el('tr');
                    tr.append(el('td', '', String(i + 1)), el('td', '', e.player), el('td', '', e.outcome));
                    table.append(tr);
                });
                content.replaceChildren(
                    el('h3', '', 'Registry'),
                    el('p', 'muted', reg.size + ' of ' + reg.capacity + ' entries'),
                    table);
            }).catch(fail);
        }

        function render(view) {
            session = view;
            errorEl.textContent = '';
            document.getElementById('player').textContent = view.player || '';
            const nodes = [];
            if (view.scene) nodes.push(el('div', 'panel', view.scene.text));
            if (view.outcome) {
                const lost = /^(Eliminated|Out of game)/.test(view.outcome.result);
                nodes.push(el('div', 'panel outcome' + (lost ? ' lost' : ''),
                    view.outcome.result + (view.outcome.text ? '\n\n' + view.outcome.text : '')));
                const back = el('button', '', 'Back to menu');
                back.onclick = function() { content.replaceChildren(); };
                const reg = el('button', '', 'View registry');
                reg.onclick = showRegistry;
                const row = el('div', 'row');
                row.append(back, reg);
                nodes.push(row);
            } else if (view.scene) {
                const choices = el('div', 'choices');
                view.scene.choices.forEach(function(c) {
                    const b = el('button', '', c.index + '. ' + c.label);
                    b.onclick = function() { choose(c.index); };
                    choices.append(b);
                });
                nodes.push(choices);
                const quit = el('button', 'stop', 'Quit to menu');
                quit.onclick = quitGame;
                nodes.push(quit);
            }
            content.replaceChildren.apply(content, nodes);
        }

        function newGame() {
            const player = document.getElementById('name').value;
            api('POST', '/sessions', { player: player }).then(render).catch(fail);
        }

        function choose(index) {
            api('POST', '/sessions/' + session.session_id + '/choose', { choice: index }).then(render).catch(fail);
        }

        function quitGame() {
            api('DELETE', '/sessions/' + session.session_id).then(function() {
                session = null;
                content.replaceChildren();
            }).catch(fail);
        }

        api('GET', '/story').then(function(s) {
            story = s;
            document.getElementById('title').textContent = s.title || 'Sentient Story';
            document.title = s.title || 'Sentient Story';
        }).catch(fail);
    </script>
</body>
</html>`

const operatorUIHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Sentient Story - Operator</title>
    <style>` + sharedCSS + `
        body { height: 100vh; }
        #status { padding: 4px 10px; border-radius: 4px; font-size: 12px; }
        #status.connected { background: #1b4332; color: #95d5b2; }
        #status.disconnected { background: #7f1d1d; color: #fca5a5; }
        #status.connecting { background: #78350f; color: #fcd34d; }
        main { flex: 1; overflow: hidden; display: flex; }
        #events { flex: 2; overflow-y: auto; padding: 10px; }
        #sessions { flex: 1; overflow-y: auto; padding: 10px; border-left: 1px solid #0f3460; font-size: 12px; }
        #sessions table { width: 100%; border-collapse: collapse; }
        #sessions td, #sessions th { padding: 4px; border-bottom: 1px solid #0f3460; text-align: left; }
        .event {
            padding: 8px 12px;
            margin-bottom: 4px;
            background: #16213e;
            border-radius: 4px;
            border-left: 3px solid #0f3460;
            font-size: 13px;
            display: flex;
            gap: 12px;
            align-items: baseline;
        }
        .event.level-error { border-left-color: #dc2626; background: #1f1515; }
        .event.level-warn { border-left-color: #d97706; }
        .event.scope-session { border-left-color: #7c3aed; }
        .event.scope-scene { border-left-color: #059669; }
        .event.scope-choice { border-left-color: #0891b2; }
        .event.scope-outcome { border-left-color: #db2777; }
        .event.scope-kiosk { border-left-color: #d97706; }
        .ts { color: #6b7280; font-size: 11px; min-width: 90px; }
        .name { color: #60a5fa; font-weight: bold; min-width: 140px; }
        .id { color: #a78bfa; }
        .msg { color: #9ca3af; }
    </style>
</head>
<body>
    <header>
        <h1>Sentient Story - Event Stream</h1>
        <span id="status" class="disconnected">Disconnected</span>
    </header>
    <main>
        <div id="events"></div>
        <div id="sessions"></div>
    </main>
    <footer>
        <span id="count">0</span> events | WebSocket: /ws/events
    </footer>

    <script>
        const eventsDiv = document.getElementById('events');
        const sessionsDiv = document.getElementById('sessions');
        const statusEl = document.getElementById('status');
        const countEl = document.getElementById('count');
        let eventCount = 0;
        let ws = null;
        let reconnectTimer = null;

        function span(cls, text) {
            const s = document.createElement('span');
            s.className = cls;
            s.textContent = text;
            return s;
        }

        function formatTime(ts) {
            try {
                const d = new Date(ts);
                return d.toLocaleTimeString('en-US', { hour12: false });
            } catch {
                return ts;
            }
        }

        function getScope(name) {
            const parts = name.split('.');
            return parts[0] || '';
        }

        function renderEvent(e) {
            const div = document.createElement('div');
            div.className = 'event level-' + e.level + ' scope-' + getScope(e.event);

            let idText = '';
            if (e.fields) {
                idText = [e.fields.player, e.fields.scene_id, e.fields.kiosk, e.fields.result]
                    .filter(Boolean).join(' ');
            }

            div.append(span('ts', formatTime(e.ts)), span('name', e.event));
            if (idText) div.append(span('id', idText));
            if (e.msg) div.append(span('msg', e.msg));

            eventsDiv.appendChild(div);
            eventCount++;
            countEl.textContent = eventCount;

            // Auto-scroll to bottom
            eventsDiv.scrollTop = eventsDiv.scrollHeight;

            while (eventsDiv.children.length > 500) {
                eventsDiv.removeChild(eventsDiv.firstChild);
            }
        }

        function refreshSessions() {
            fetch('/operator/sessions').then(function(res) { return res.json(); }).then(function(list) {
                const table = document.createElement('table');
                const head = document.createElement('tr');
                ['Player', 'Scene', 'State', 'Steps'].forEach(function(h) {
                    const th = document.createElement('th');
                    th.textContent = h;
                    head.append(th);
                });
                table.append(head);
                list.forEach(function(s) {
                    const tr = document.createElement('tr');
                    [s.player, s.scene_id, s.outcome || s.state, String(s.steps)].forEach(function(v) {
                        const td = document.createElement('td');
                        td.textContent = v;
                        tr.append(td);
                    });
                    table.append(tr);
                });
                const h = document.createElement('h3');
                h.textContent = list.length + ' sessions';
                sessionsDiv.replaceChildren(h, table);
            }).catch(function(err) { console.error('Failed to load sessions:', err); });
        }

        function setStatus(status) {
            statusEl.className = status;
            statusEl.textContent = status.charAt(0).toUpperCase() + status.slice(1);
        }

        function connect() {
            if (ws && ws.readyState === WebSocket.OPEN) return;

            setStatus('connecting');

            const protocol = location.protocol === 'https:' ? 'wss:' : 'ws:';
            ws = new WebSocket(protocol + '//' + location.host + '/ws/events');

            ws.onopen = function() {
                setStatus('connected');
                if (reconnectTimer) {
                    clearTimeout(reconnectTimer);
                    reconnectTimer = null;
                }
            };

            ws.onmessage = function(msg) {
                try {
                    renderEvent(JSON.parse(msg.data));
                } catch (err) {
                    console.error('Failed to parse event:', err);
                }
            };

            ws.onclose = function() {
                setStatus('disconnected');
                scheduleReconnect();
            };

            ws.onerror = function(err) {
                console.error('WebSocket error:', err);
                ws.close();
            };
        }

        function scheduleReconnect() {
            if (reconnectTimer) return;
            reconnectTimer = setTimeout(function() {
                reconnectTimer = null;
                connect();
            }, 3000);
        }

        connect();
        refreshSessions();
        setInterval(refreshSessions, 5000);
    </script>
</body>
</html>`

func writeHTML(w http.ResponseWriter, page string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(page))
}

// playerUIHandler serves the browser player.
func playerUIHandler(w http.ResponseWriter, r *http.Request) {
	writeHTML(w, playerUIHTML)
}

// operatorUIHandler serves the operator event console.
func operatorUIHandler(w http.ResponseWriter, r *http.Request) {
	writeHTML(w, operatorUIHTML)
}
